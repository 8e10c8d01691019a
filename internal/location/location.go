// Package location wraps on-demand device geolocation. A fix is requested,
// never tracked continuously, and never silently substituted with a cached
// or default coordinate.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jpvelasco/placedrop/internal/model"
)

// ErrPermissionDenied means location permission was refused.
var ErrPermissionDenied = errors.New("location permission denied")

// DeviceLocator is the device location service.
type DeviceLocator interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentFix(ctx context.Context) (model.GeoFix, error)
}

// Provider performs single on-demand fix requests.
type Provider struct {
	dev DeviceLocator
}

// NewProvider constructs a Provider.
func NewProvider(dev DeviceLocator) *Provider {
	return &Provider{dev: dev}
}

// RequestFix asks for permission and takes exactly one reading.
func (p *Provider) RequestFix(ctx context.Context) (model.GeoFix, error) {
	granted, err := p.dev.RequestPermission(ctx)
	if err != nil {
		return model.GeoFix{}, fmt.Errorf("request location permission: %w", err)
	}
	if !granted {
		return model.GeoFix{}, ErrPermissionDenied
	}
	fix, err := p.dev.CurrentFix(ctx)
	if err != nil {
		return model.GeoFix{}, fmt.Errorf("current fix: %w", err)
	}
	return fix, nil
}

// Toggle is the idempotent on/off location switch used by the place browsing
// screen: on performs exactly one fix request and holds it, off releases it.
// One held fix per instance.
type Toggle struct {
	mu   sync.Mutex
	prov *Provider
	fix  *model.GeoFix
}

// NewToggle constructs an off Toggle.
func NewToggle(prov *Provider) *Toggle {
	return &Toggle{prov: prov}
}

// Set switches the toggle. Turning on when already on returns the held fix
// without a new request; turning off when already off is a no-op.
func (t *Toggle) Set(ctx context.Context, on bool) (*model.GeoFix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !on {
		t.fix = nil
		return nil, nil
	}
	if t.fix != nil {
		return t.fix, nil
	}
	fix, err := t.prov.RequestFix(ctx)
	if err != nil {
		return nil, err
	}
	t.fix = &fix
	return t.fix, nil
}

// Fix reports the held fix, nil when the toggle is off.
func (t *Toggle) Fix() *model.GeoFix {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fix
}

// StaticLocator is a DeviceLocator with a fixed answer, for tests and
// headless runs.
type StaticLocator struct {
	Granted bool
	Point   model.GeoFix
}

func (l StaticLocator) RequestPermission(ctx context.Context) (bool, error) {
	return l.Granted, nil
}

func (l StaticLocator) CurrentFix(ctx context.Context) (model.GeoFix, error) {
	return l.Point, nil
}
