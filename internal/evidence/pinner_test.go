package evidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/greenchain/ccrs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPinner(t *testing.T) {
	t.Run("disabled config returns nil", func(t *testing.T) {
		assert.Nil(t, NewPinner(config.IpfsConfig{Enabled: false}))
		assert.Nil(t, NewPinner(config.IpfsConfig{Enabled: true, Endpoint: ""}))
	})
}

func TestPin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful pin", func(t *testing.T) {
		var gotAuth string
		var gotBody map[string]string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/v1/pins", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"cid":"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"}`))
		}))
		defer srv.Close()

		p := NewPinner(config.IpfsConfig{Enabled: true, Endpoint: srv.URL, APIKey: "secret-key", Timeout: 5})
		require.NotNil(t, p)

		cid, err := p.Pin(ctx, "survey.pdf", []byte("mangrove survey data"))
		require.NoError(t, err)
		assert.Equal(t, "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", cid)

		assert.Equal(t, "Bearer secret-key", gotAuth)
		assert.Equal(t, "survey.pdf", gotBody["name"])
		decoded, err := base64.StdEncoding.DecodeString(gotBody["content"])
		require.NoError(t, err)
		assert.Equal(t, "mangrove survey data", string(decoded))
	})

	t.Run("non 2xx status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p := NewPinner(config.IpfsConfig{Enabled: true, Endpoint: srv.URL, Timeout: 5})
		_, err := p.Pin(ctx, "survey.pdf", []byte("data"))
		assert.ErrorContains(t, err, "429")
	})

	t.Run("empty cid is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"cid":""}`))
		}))
		defer srv.Close()

		p := NewPinner(config.IpfsConfig{Enabled: true, Endpoint: srv.URL, Timeout: 5})
		_, err := p.Pin(ctx, "survey.pdf", []byte("data"))
		assert.ErrorContains(t, err, "empty cid")
	})
}
