package recording

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jpvelasco/placedrop/internal/capture"
	"github.com/jpvelasco/placedrop/internal/uploader"
)

// fakeRecorder finalizes into a real temp file so the uploader's
// consume-once behavior is exercised end to end.
type fakeRecorder struct {
	dir       string
	started   bool
	discarded bool
	failStop  bool
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.started = true
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) (string, string, error) {
	if r.failStop {
		return "", "", errors.New("recorder jammed")
	}
	path := filepath.Join(r.dir, "take.m4a")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o600); err != nil {
		return "", "", err
	}
	r.started = false
	return path, "audio/mp4", nil
}

func (r *fakeRecorder) Discard(ctx context.Context) error {
	r.started = false
	r.discarded = true
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	keys    []string
	failPut bool
}

func (f *fakeStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.failPut {
		return errors.New("backend unavailable")
	}
	if _, err := io.ReadAll(reader); err != nil {
		return err
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) DownloadURL(ctx context.Context, key string) (string, error) {
	return "https://media.test/" + key, nil
}

func newTestSession(t *testing.T, micGranted, failPut bool) (*Session, *fakeRecorder, *fakeStore) {
	t.Helper()
	rec := &fakeRecorder{dir: t.TempDir()}
	store := &fakeStore{failPut: failPut}
	up := uploader.New(store, zerolog.Nop())
	perms := capture.StaticPermissions{MicrophoneGranted: micGranted}
	return NewSession(perms, rec, up, "user-7", zerolog.Nop()), rec, store
}

func TestHappyPathRecording(t *testing.T) {
	sess, rec, store := newTestSession(t, true, false)
	ctx := context.Background()

	require.Equal(t, StateIdle, sess.State())
	require.NoError(t, sess.Start(ctx))
	require.Equal(t, StateRecording, sess.State())
	require.True(t, rec.started)

	ref, err := sess.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDone, sess.State())
	require.NotEmpty(t, ref.DownloadURL)
	require.Len(t, store.keys, 1)

	// The capture file was consumed by the upload.
	_, statErr := os.Stat(filepath.Join(rec.dir, "take.m4a"))
	require.True(t, os.IsNotExist(statErr))
}

func TestStartDeniedMicrophoneLeavesIdle(t *testing.T) {
	sess, _, store := newTestSession(t, false, false)
	err := sess.Start(context.Background())
	require.ErrorIs(t, err, capture.ErrPermissionDenied)
	require.Equal(t, StateIdle, sess.State())
	require.Empty(t, store.keys, "no upload may be attempted")
}

func TestStartWhileRecordingRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, true, false)
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))
	require.ErrorIs(t, sess.Start(ctx), ErrInvalidTransition)
	require.Equal(t, StateRecording, sess.State())
}

func TestStopOutsideRecordingRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, true, false)
	ctx := context.Background()

	_, err := sess.Stop(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, sess.Start(ctx))
	_, err = sess.Stop(ctx)
	require.NoError(t, err)

	// Done: stop again is invalid, but a new start is allowed.
	_, err = sess.Stop(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, sess.Start(ctx))
}

func TestCancelFromIdle(t *testing.T) {
	sess, rec, store := newTestSession(t, true, false)
	require.NoError(t, sess.Cancel(context.Background()))
	require.Equal(t, StateCancelled, sess.State())
	require.False(t, rec.discarded)
	require.Empty(t, store.keys)
}

func TestCancelWhileRecordingDiscardsBytes(t *testing.T) {
	sess, rec, store := newTestSession(t, true, false)
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))
	require.NoError(t, sess.Cancel(ctx))
	require.Equal(t, StateCancelled, sess.State())
	require.True(t, rec.discarded)
	require.Empty(t, store.keys, "cancelled capture must not upload")
}

func TestCancelAfterSettlementRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, true, false)
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))
	_, err := sess.Stop(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, sess.Cancel(ctx), ErrInvalidTransition)
}

func TestUploadFailureStillSettlesDone(t *testing.T) {
	sess, _, _ := newTestSession(t, true, true)
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))

	_, err := sess.Stop(ctx)
	require.ErrorIs(t, err, uploader.ErrUploadFailed)
	require.Equal(t, StateDone, sess.State())

	// Done allows a fresh session; the failed capture is gone for good.
	require.NoError(t, sess.Start(ctx))
}

func TestRecorderFailureSettlesDone(t *testing.T) {
	sess, rec, store := newTestSession(t, true, false)
	rec.failStop = true
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))

	_, err := sess.Stop(ctx)
	require.Error(t, err)
	require.Equal(t, StateDone, sess.State())
	require.Empty(t, store.keys)
}
