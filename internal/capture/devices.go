package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// StaticPermissions is a Permissions implementation with fixed grants. The
// server trusts the client's own permission prompts, so the API runs with
// everything granted; tests flip the fields to simulate refusals.
type StaticPermissions struct {
	CameraGranted     bool
	MicrophoneGranted bool
}

func (p StaticPermissions) Camera(ctx context.Context) (bool, error) {
	return p.CameraGranted, nil
}

func (p StaticPermissions) Microphone(ctx context.Context) (bool, error) {
	return p.MicrophoneGranted, nil
}

// FilePicker is an ImagePicker over a file that already exists locally, used
// when the image arrived by HTTP upload rather than an on-device picker. An
// empty path reports ErrCancelled.
type FilePicker struct {
	Path string
	MIME string
}

func (p FilePicker) Pick(ctx context.Context, source Source) (string, string, error) {
	if p.Path == "" {
		return "", "", ErrCancelled
	}
	if _, err := os.Stat(p.Path); err != nil {
		return "", "", fmt.Errorf("stat picked file: %w", err)
	}
	return p.Path, p.MIME, nil
}

// BufferRecorder is a Recorder that accumulates bytes written to it while
// armed and finalizes them into a temp file on Stop. It backs the HTTP
// recording flow, where the client streams the finished audio bytes up.
type BufferRecorder struct {
	mu     sync.Mutex
	active bool
	buf    bytes.Buffer
	mime   string
	ext    string
}

// NewBufferRecorder constructs a BufferRecorder producing files with the
// given MIME type and extension (e.g. "audio/mp4", ".m4a").
func NewBufferRecorder(mime, ext string) *BufferRecorder {
	return &BufferRecorder{mime: mime, ext: ext}
}

func (r *BufferRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return errors.New("recorder already started")
	}
	r.active = true
	r.buf.Reset()
	return nil
}

// Write appends audio bytes. Only valid between Start and Stop.
func (r *BufferRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0, errors.New("recorder not started")
	}
	return r.buf.Write(p)
}

func (r *BufferRecorder) Stop(ctx context.Context) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return "", "", errors.New("recorder not started")
	}
	r.active = false
	tmp, err := os.CreateTemp("", "placedrop-*"+r.ext)
	if err != nil {
		return "", "", fmt.Errorf("create capture file: %w", err)
	}
	if _, err := tmp.Write(r.buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("write capture file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("close capture file: %w", err)
	}
	r.buf.Reset()
	return tmp.Name(), r.mime, nil
}

func (r *BufferRecorder) Discard(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.buf.Reset()
	return nil
}
