package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/identity"
)

func TestHTTPClient_GetActivationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Active activation decodes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/activations/act-1/status", r.URL.Path)
			_ = json.NewEncoder(w).Encode(identity.Activation{Status: identity.StatusActive, UserID: "user-1"})
		}))
		t.Cleanup(server.Close)

		client := identity.NewHTTPClient(server.URL)
		act, err := client.GetActivationStatus(ctx, "act-1")
		require.NoError(t, err)
		assert.Equal(t, identity.StatusActive, act.Status)
		assert.Equal(t, "user-1", act.UserID)
	})

	t.Run("404 maps to not-found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(server.Close)

		client := identity.NewHTTPClient(server.URL)
		_, err := client.GetActivationStatus(ctx, "act-missing")
		assert.ErrorIs(t, err, identity.ErrActivationNotFound)
	})

	t.Run("5xx maps to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		client := identity.NewHTTPClient(server.URL)
		_, err := client.GetActivationStatus(ctx, "act-1")
		assert.ErrorIs(t, err, identity.ErrStatusUnavailable)
	})

	t.Run("Unreachable provider maps to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		client := identity.NewHTTPClient(server.URL)
		_, err := client.GetActivationStatus(ctx, "act-1")
		assert.ErrorIs(t, err, identity.ErrStatusUnavailable)
	})
}
