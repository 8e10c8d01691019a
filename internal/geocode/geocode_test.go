package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "-0.1807", r.URL.Query().Get("lat"))
		require.Equal(t, "-78.4678", r.URL.Query().Get("lon"))
		require.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		w.Write([]byte(`{"display_name":"Av. Amazonas, Quito, Ecuador"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	address, err := client.Reverse(context.Background(), -0.1807, -78.4678)
	require.NoError(t, err)
	require.Equal(t, "Av. Amazonas, Quito, Ecuador", address)
}

func TestReverseServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Reverse(context.Background(), 0, 0)
	require.Error(t, err)
}

func TestReverseUnresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Reverse(context.Background(), 0, 0)
	require.Error(t, err)
}
