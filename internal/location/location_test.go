package location

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpvelasco/placedrop/internal/model"
)

var quito = model.GeoFix{Latitude: -0.1807, Longitude: -78.4678}

func TestRequestFixDenied(t *testing.T) {
	prov := NewProvider(StaticLocator{Granted: false, Point: quito})
	_, err := prov.RequestFix(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRequestFixGranted(t *testing.T) {
	prov := NewProvider(StaticLocator{Granted: true, Point: quito})
	fix, err := prov.RequestFix(context.Background())
	require.NoError(t, err)
	require.Equal(t, quito, fix)
}

func TestToggleHoldsExactlyOneFix(t *testing.T) {
	counter := &countingLocator{point: quito}
	toggle := NewToggle(NewProvider(counter))
	ctx := context.Background()

	fix, err := toggle.Set(ctx, true)
	require.NoError(t, err)
	require.Equal(t, quito, *fix)
	require.Equal(t, 1, counter.calls)

	// Turning on again is idempotent; no second fix request.
	again, err := toggle.Set(ctx, true)
	require.NoError(t, err)
	require.Equal(t, fix, again)
	require.Equal(t, 1, counter.calls)

	released, err := toggle.Set(ctx, false)
	require.NoError(t, err)
	require.Nil(t, released)
	require.Nil(t, toggle.Fix())

	// Off when already off stays a no-op.
	_, err = toggle.Set(ctx, false)
	require.NoError(t, err)

	// Back on performs a fresh request.
	_, err = toggle.Set(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 2, counter.calls)
}

func TestToggleDeniedHoldsNothing(t *testing.T) {
	toggle := NewToggle(NewProvider(StaticLocator{Granted: false}))
	fix, err := toggle.Set(context.Background(), true)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Nil(t, fix)
	require.Nil(t, toggle.Fix(), "a denied request must not fall back to anything")
}

type countingLocator struct {
	point model.GeoFix
	calls int
}

func (l *countingLocator) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (l *countingLocator) CurrentFix(ctx context.Context) (model.GeoFix, error) {
	l.calls++
	return l.point, nil
}
