package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch r.URL.Path {
		case "/v1/vessels/367001234":
			_ = json.NewEncoder(w).Encode(Profile{
				MMSI: 367001234, IMO: 9300001, Name: "PACIFIC TRADER",
				Type: "Cargo", LengthM: 180, Flag: "US",
			})
		case "/v1/vessels/404":
			w.WriteHeader(http.StatusNotFound)
		case "/v1/vessels/429":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		p, err := client.Lookup(ctx, 367001234)
		require.NoError(t, err)
		assert.Equal(t, "PACIFIC TRADER", p.Name)
		assert.Equal(t, int64(9300001), p.IMO)
		assert.Equal(t, 180.0, p.LengthM)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.Lookup(ctx, 404)
		assert.ErrorIs(t, err, ErrNoProfile)
	})

	t.Run("rate limited", func(t *testing.T) {
		_, err := client.Lookup(ctx, 429)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := client.Lookup(ctx, 500)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrNoProfile)
	})
}
