package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendClient_PostPaths(t *testing.T) {
	type captured struct {
		method string
		path   string
		body   map[string]any
	}
	var got []captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		got = append(got, captured{method: r.Method, path: r.URL.Path, body: body})
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewBackendClient(srv.URL, time.Second, slog.Default())
	ctx := context.Background()

	require.NoError(t, client.ChangeSource(ctx, "airplay"))
	require.NoError(t, client.SetVolume(ctx, 55))
	require.NoError(t, client.SetBand(ctx, "125", -3))
	require.NoError(t, client.SetFeature(ctx, "multiroom", true))
	require.NoError(t, client.SendCommand(ctx, "spotify", "pause", nil))

	require.Len(t, got, 5)
	assert.Equal(t, "/api/source", got[0].path)
	assert.Equal(t, "airplay", got[0].body["source"])
	assert.Equal(t, "/api/volume", got[1].path)
	assert.Equal(t, 55.0, got[1].body["volume"])
	assert.Equal(t, "/api/equalizer/band", got[2].path)
	assert.Equal(t, "/api/features/multiroom", got[3].path)
	assert.Equal(t, true, got[3].body["enabled"])
	assert.Equal(t, "/api/sources/spotify/command", got[4].path)
	assert.Equal(t, "pause", got[4].body["command"])
}

func TestBackendClient_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "source busy", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewBackendClient(srv.URL, time.Second, slog.Default())
	err := client.ChangeSource(context.Background(), "airplay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "source busy")
}

func TestBackendClient_PollStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sources/bluetooth/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "playing",
			"deviceName": "Pixel 8 Pro",
		})
	}))
	defer srv.Close()

	client := NewBackendClient(srv.URL, time.Second, slog.Default())
	status, err := client.PollStatus(context.Background(), "bluetooth")
	require.NoError(t, err)

	// The payload carried no source field; the poll target fills it in.
	assert.Equal(t, "bluetooth", status.Source)
	assert.Equal(t, "playing", status.Status)
	assert.Equal(t, "Pixel 8 Pro", status.DeviceName)
}

func TestBackendClient_PollStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewBackendClient(srv.URL, time.Second, slog.Default())
	_, err := client.PollStatus(context.Background(), "bluetooth")
	assert.Error(t, err)
}
