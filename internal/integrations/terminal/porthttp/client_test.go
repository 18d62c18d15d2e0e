package porthttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/terminals/LCB1/vessels", r.URL.Path)
		require.Equal(t, "ATLANTIC STAR 112S", r.URL.Query().Get("name"))
		require.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"found":true,"voyage_found":true,"eta":"2025-06-11","raw":"berth A2"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	res, err := c.Lookup(context.Background(), "ATLANTIC STAR 112S", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.True(t, res.VoyageFound)
	require.NotNil(t, res.Eta)
	require.Equal(t, "2025-06-11", *res.Eta)
	require.Equal(t, "berth A2", res.Raw)
}

func TestClient_Lookup_NotListed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found":false}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res, err := c.Lookup(context.Background(), "GHOST SHIP", "LCB1")
	require.NoError(t, err)
	require.False(t, res.VesselFound)
	require.Nil(t, res.Eta)
}

func TestClient_Lookup_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Lookup(context.Background(), "ATLANTIC STAR", "LCB1")
	require.Error(t, err)
}
