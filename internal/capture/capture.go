// Package capture wraps device camera, gallery and microphone access behind
// narrow interfaces. The real device SDKs live on the client; everything here
// talks to them through Permissions, ImagePicker and Recorder only.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/jpvelasco/placedrop/internal/model"
)

var (
	// ErrPermissionDenied means the user refused camera or microphone
	// access. Recoverable: the flow aborts and the user may be re-prompted.
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrCancelled means the user backed out of the picker. Not a failure;
	// callers must not report it as one.
	ErrCancelled = errors.New("capture cancelled")
)

// Source selects where an image capture comes from.
type Source string

const (
	SourceGallery Source = "gallery"
	SourceCamera  Source = "camera"
)

// Permissions reports whether the user granted access to a device facility.
type Permissions interface {
	Camera(ctx context.Context) (bool, error)
	Microphone(ctx context.Context) (bool, error)
}

// ImagePicker produces a local image file from the gallery or camera, or
// ErrCancelled when the user backs out.
type ImagePicker interface {
	Pick(ctx context.Context, source Source) (path, mime string, err error)
}

// Recorder drives a single microphone capture. Start arms it, Stop finalizes
// the bytes into a local file, Discard throws them away without a file.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (path, mime string, err error)
	Discard(ctx context.Context) error
}

// Adapter is the uniform "produce a local media handle" operation over the
// device interfaces.
type Adapter struct {
	perms  Permissions
	picker ImagePicker
}

// NewAdapter constructs an Adapter.
func NewAdapter(perms Permissions, picker ImagePicker) *Adapter {
	return &Adapter{perms: perms, picker: picker}
}

// CaptureImage runs one gallery or camera selection. The returned capture
// owns a transient local file; the caller must upload or discard it.
func (a *Adapter) CaptureImage(ctx context.Context, source Source) (*model.MediaCapture, error) {
	if source == SourceCamera {
		granted, err := a.perms.Camera(ctx)
		if err != nil {
			return nil, fmt.Errorf("check camera permission: %w", err)
		}
		if !granted {
			return nil, ErrPermissionDenied
		}
	}
	path, mime, err := a.picker.Pick(ctx, source)
	if err != nil {
		// ErrCancelled passes through untouched so callers can tell the
		// user backing out apart from a real failure.
		if errors.Is(err, ErrCancelled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("pick image: %w", err)
	}
	return &model.MediaCapture{
		LocalPath: path,
		Kind:      model.KindImage,
		MIMEHint:  mime,
	}, nil
}
