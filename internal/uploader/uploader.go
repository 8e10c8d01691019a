// Package uploader turns a local media capture into a stored, retrievable
// object. It is the only consumer of a MediaCapture: the local file is read
// once, removed, and the durable reference handed back.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/jpvelasco/placedrop/internal/model"
)

var (
	// ErrReadFailed means the local handle could not be turned into a
	// payload (file vanished, unreadable).
	ErrReadFailed = errors.New("read capture failed")
	// ErrUploadFailed means the object store rejected the payload.
	ErrUploadFailed = errors.New("upload failed")
)

// ObjectStore is the narrow slice of the blob store the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	DownloadURL(ctx context.Context, key string) (string, error)
}

// Uploader pushes captures into an ObjectStore under deterministic keys.
type Uploader struct {
	store ObjectStore
	log   zerolog.Logger
	// now is swappable so tests can pin the key timestamp.
	now func() time.Time
}

// New constructs an Uploader.
func New(store ObjectStore, log zerolog.Logger) *Uploader {
	return &Uploader{
		store: store,
		log:   log.With().Str("component", "uploader").Logger(),
		now:   time.Now,
	}
}

// Upload reads the capture's local file, pushes it under
// {namespace}/{owner}/{timestampMillis}{ext} and returns the stored
// reference. The millisecond timestamp is the only collision guard: two
// uploads from the same owner within the same millisecond share a key. That
// matches the historical key layout of already stored data, so it stays.
//
// The local file is removed once read, whatever the upload outcome; the
// capture must not be reused afterwards. Upload and metadata registration
// are not atomic: if the caller dies before recording DownloadURL, the blob
// is orphaned (no garbage collection in scope).
func (u *Uploader) Upload(ctx context.Context, cap *model.MediaCapture, namespace, owner string) (*model.StoredMediaRef, error) {
	if cap == nil || cap.LocalPath == "" {
		return nil, fmt.Errorf("%w: no local handle", ErrReadFailed)
	}
	data, err := os.ReadFile(cap.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	// The capture is consumed here; the bytes live on only in the store.
	if err := os.Remove(cap.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.log.Warn().Err(err).Str("path", cap.LocalPath).Msg("remove consumed capture")
	}

	contentType, ext := contentTypeAndExt(cap.MIMEHint, data)
	key := fmt.Sprintf("%s/%s/%d%s", namespace, owner, u.now().UnixMilli(), ext)

	if err := u.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	url, err := u.store.DownloadURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	u.log.Info().Str("key", key).Int("bytes", len(data)).Msg("capture uploaded")
	return &model.StoredMediaRef{RemoteKey: key, DownloadURL: url}, nil
}

// contentTypeAndExt resolves the payload's content type, preferring the
// device's MIME hint and falling back to sniffing the bytes.
func contentTypeAndExt(hint string, data []byte) (string, string) {
	if hint != "" {
		if exts, err := mime.ExtensionsByType(hint); err == nil && len(exts) > 0 {
			return hint, exts[0]
		}
	}
	detected := mimetype.Detect(data)
	ext := detected.Extension()
	if ext == "" {
		ext = ".bin"
	}
	return detected.String(), ext
}
