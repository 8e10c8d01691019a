package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jpvelasco/placedrop/internal/model"
)

// "??_ibE_ibE" encodes the two points (0,0) and (1,1).
const diagonalPolyline = "??_ibE_ibE"

func directionsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("origin"))
		require.NotEmpty(t, r.URL.Query().Get("destination"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouteSuccess(t *testing.T) {
	srv := directionsServer(t, http.StatusOK, `{
		"status": "OK",
		"routes": [{
			"overview_polyline": {"points": "`+diagonalPolyline+`"},
			"legs": [{"distance": {"value": 157000}, "duration": {"value": 5000}}]
		}]
	}`)
	client := NewClient(srv.URL, "test-key", srv.Client(), zerolog.Nop())

	path, err := client.Route(context.Background(), model.GeoFix{}, model.GeoFix{Latitude: 1, Longitude: 1})
	require.NoError(t, err)
	require.NotEmpty(t, path.Points)
	require.Equal(t, model.GeoFix{Latitude: 0, Longitude: 0}, path.Points[0])
	require.Equal(t, model.GeoFix{Latitude: 1, Longitude: 1}, path.Points[len(path.Points)-1])
	require.Equal(t, 157000, path.DistanceMeters)
	require.Equal(t, 5000, path.DurationSeconds)
}

func TestRouteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, "boom"},
		{"zero results", http.StatusOK, `{"status":"ZERO_RESULTS","routes":[]}`},
		{"denied", http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key","routes":[]}`},
		{"garbage body", http.StatusOK, `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := directionsServer(t, tt.status, tt.body)
			client := NewClient(srv.URL, "test-key", srv.Client(), zerolog.Nop())
			_, err := client.Route(context.Background(), model.GeoFix{}, model.GeoFix{Latitude: 1, Longitude: 1})
			require.ErrorIs(t, err, ErrRoute)
		})
	}
}

type fakeDirections struct {
	path model.RoutePath
	err  error
}

func (f fakeDirections) Route(ctx context.Context, origin, dest model.GeoFix) (model.RoutePath, error) {
	return f.path, f.err
}

func TestOverlayDrawsPathWhenBothEndpointsSet(t *testing.T) {
	dirs := fakeDirections{path: model.RoutePath{Points: []model.GeoFix{{}, {Latitude: 1, Longitude: 1}}}}
	o := NewOverlay(dirs)
	ctx := context.Background()

	require.NoError(t, o.SetOrigin(ctx, model.GeoFix{}))
	require.Nil(t, o.Path(), "no path before a destination is selected")

	require.NoError(t, o.SetDestination(ctx, model.GeoFix{Latitude: 1, Longitude: 1}))
	require.NotNil(t, o.Path())
	require.Len(t, o.Markers(), 2)
}

func TestOverlayKeepsMarkersOnRouteError(t *testing.T) {
	o := NewOverlay(fakeDirections{err: ErrRoute})
	ctx := context.Background()

	require.NoError(t, o.SetOrigin(ctx, model.GeoFix{}))
	err := o.SetDestination(ctx, model.GeoFix{Latitude: 1, Longitude: 1})
	require.ErrorIs(t, err, ErrRoute)

	require.Len(t, o.Markers(), 2, "markers survive a failed route computation")
	require.Nil(t, o.Path())
}

func TestOverlayClearDestinationDropsPath(t *testing.T) {
	dirs := fakeDirections{path: model.RoutePath{Points: []model.GeoFix{{}, {Latitude: 1, Longitude: 1}}}}
	o := NewOverlay(dirs)
	ctx := context.Background()
	require.NoError(t, o.SetOrigin(ctx, model.GeoFix{}))
	require.NoError(t, o.SetDestination(ctx, model.GeoFix{Latitude: 1, Longitude: 1}))
	require.NotNil(t, o.Path())

	o.ClearDestination()
	require.Nil(t, o.Path(), "path lifetime equals selection lifetime")
	require.Len(t, o.Markers(), 1)
}

func TestOverlayRecomputesOnEndpointChange(t *testing.T) {
	calls := 0
	dirs := countingDirections{calls: &calls}
	o := NewOverlay(dirs)
	ctx := context.Background()

	require.NoError(t, o.SetOrigin(ctx, model.GeoFix{}))
	require.NoError(t, o.SetDestination(ctx, model.GeoFix{Latitude: 1, Longitude: 1}))
	require.NoError(t, o.SetOrigin(ctx, model.GeoFix{Latitude: 0.5}))
	require.Equal(t, 2, calls)
}

type countingDirections struct {
	calls *int
}

func (c countingDirections) Route(ctx context.Context, origin, dest model.GeoFix) (model.RoutePath, error) {
	*c.calls++
	return model.RoutePath{Points: []model.GeoFix{origin, dest}}, nil
}
