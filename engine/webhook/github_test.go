package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightdesk/nightdesk/errors"
)

func TestGitHubProviderList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/infra/hooks", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "active": true, "config": map[string]string{"url": "https://a.example/hooks"}},
			{"id": 2, "active": false, "config": map[string]string{"url": "https://b.example/hooks"}},
		})
	}))
	defer srv.Close()

	p := NewGitHubProvider(srv.URL, "test-token")
	regs, err := p.List(context.Background(), "acme/infra")
	require.NoError(t, err)

	// Inactive hooks are invisible to reconciliation.
	require.Len(t, regs, 1)
	assert.Equal(t, "1", regs[0].ID)
	assert.Equal(t, "https://a.example/hooks", regs[0].URL)
}

func TestGitHubProviderCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		cfg := payload["config"].(map[string]interface{})
		assert.Equal(t, "https://abc.tunnel.example/hooks/github", cfg["url"])
		assert.Equal(t, "json", cfg["content_type"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 42, "active": true,
			"config": map[string]string{"url": cfg["url"].(string)},
		})
	}))
	defer srv.Close()

	p := NewGitHubProvider(srv.URL, "")
	reg, err := p.Create(context.Background(), "acme/infra", "https://abc.tunnel.example/hooks/github")
	require.NoError(t, err)
	assert.Equal(t, "42", reg.ID)
}

func TestGitHubProviderErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrResourceNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnprocessableEntity, ErrConflict},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		p := NewGitHubProvider(srv.URL, "")
		_, err := p.List(context.Background(), "acme/infra")
		require.Error(t, err)
		assert.True(t, errors.Is(err, tt.want), "status %d should map to %v", tt.status, tt.want)

		srv.Close()
	}
}

func TestGitHubProviderDelete(t *testing.T) {
	deleted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/repos/acme/infra/hooks/42", r.URL.Path)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewGitHubProvider(srv.URL, "")
	require.NoError(t, p.Delete(context.Background(), "acme/infra", "42"))
	assert.True(t, deleted)
}
