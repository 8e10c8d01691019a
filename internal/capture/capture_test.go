package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpvelasco/placedrop/internal/model"
)

func TestCaptureImageFromGallery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	adapter := NewAdapter(
		StaticPermissions{},
		FilePicker{Path: path, MIME: "image/jpeg"},
	)
	// Gallery selection needs no camera permission.
	cap, err := adapter.CaptureImage(context.Background(), SourceGallery)
	require.NoError(t, err)
	require.Equal(t, model.KindImage, cap.Kind)
	require.Equal(t, path, cap.LocalPath)
	require.Equal(t, "image/jpeg", cap.MIMEHint)
}

func TestCaptureImageCameraDenied(t *testing.T) {
	adapter := NewAdapter(
		StaticPermissions{CameraGranted: false},
		FilePicker{Path: "irrelevant"},
	)
	_, err := adapter.CaptureImage(context.Background(), SourceCamera)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCaptureImageCancelled(t *testing.T) {
	adapter := NewAdapter(StaticPermissions{CameraGranted: true}, FilePicker{})
	_, err := adapter.CaptureImage(context.Background(), SourceGallery)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestBufferRecorderLifecycle(t *testing.T) {
	rec := NewBufferRecorder("audio/mp4", ".m4a")
	ctx := context.Background()

	// Writes before Start are rejected.
	_, err := rec.Write([]byte("early"))
	require.Error(t, err)

	require.NoError(t, rec.Start(ctx))
	require.Error(t, rec.Start(ctx), "double start must be rejected")

	_, err = rec.Write([]byte("audio-"))
	require.NoError(t, err)
	_, err = rec.Write([]byte("bytes"))
	require.NoError(t, err)

	path, mime, err := rec.Stop(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })
	require.Equal(t, "audio/mp4", mime)
	require.Equal(t, ".m4a", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "audio-bytes", string(data))

	// Stopped recorder needs a fresh Start.
	_, _, err = rec.Stop(ctx)
	require.Error(t, err)
}

func TestBufferRecorderDiscard(t *testing.T) {
	rec := NewBufferRecorder("audio/mp4", ".m4a")
	ctx := context.Background()
	require.NoError(t, rec.Start(ctx))
	_, err := rec.Write([]byte("doomed"))
	require.NoError(t, err)
	require.NoError(t, rec.Discard(ctx))

	_, _, err = rec.Stop(ctx)
	require.Error(t, err, "discarded session leaves nothing to stop")
}
