package route

import (
	"context"
	"sync"

	"github.com/jpvelasco/placedrop/internal/model"
)

// Overlay holds the endpoint markers and the current route path for one map
// view. The path's lifetime equals the destination selection's lifetime: it
// is recomputed whenever either endpoint changes and dropped the moment the
// destination is deselected. A failed computation leaves both markers in
// place with no path.
type Overlay struct {
	mu     sync.Mutex
	dirs   Directions
	origin *model.GeoFix
	dest   *model.GeoFix
	path   *model.RoutePath
}

// NewOverlay constructs an empty Overlay.
func NewOverlay(dirs Directions) *Overlay {
	return &Overlay{dirs: dirs}
}

// SetOrigin moves the origin marker and recomputes the path if a
// destination is selected.
func (o *Overlay) SetOrigin(ctx context.Context, fix model.GeoFix) error {
	o.mu.Lock()
	o.origin = &fix
	o.mu.Unlock()
	return o.recompute(ctx)
}

// SetDestination selects a destination and recomputes the path if an origin
// is known.
func (o *Overlay) SetDestination(ctx context.Context, fix model.GeoFix) error {
	o.mu.Lock()
	o.dest = &fix
	o.mu.Unlock()
	return o.recompute(ctx)
}

// ClearDestination deselects the destination, dropping its marker and the
// path immediately.
func (o *Overlay) ClearDestination() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dest = nil
	o.path = nil
}

// ClearOrigin drops the origin marker and the path.
func (o *Overlay) ClearOrigin() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.origin = nil
	o.path = nil
}

// Markers reports the currently visible endpoint markers, origin first.
func (o *Overlay) Markers() []model.GeoFix {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.GeoFix, 0, 2)
	if o.origin != nil {
		out = append(out, *o.origin)
	}
	if o.dest != nil {
		out = append(out, *o.dest)
	}
	return out
}

// Path reports the current route path, nil when none is drawn.
func (o *Overlay) Path() *model.RoutePath {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.path
}

func (o *Overlay) recompute(ctx context.Context) error {
	o.mu.Lock()
	if o.origin == nil || o.dest == nil {
		o.path = nil
		o.mu.Unlock()
		return nil
	}
	origin, dest := *o.origin, *o.dest
	o.mu.Unlock()

	path, err := o.dirs.Route(ctx, origin, dest)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		// Degrade to markers only; the stale path must not survive the
		// endpoint change that triggered this recompute.
		o.path = nil
		return err
	}
	o.path = &path
	return nil
}
