package customers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/internal/customers/1":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":1,"name":"ACME"}}`))
		case "/internal/customers/2":
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":2,"active":false}}`))
		case "/internal/customers/3":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"Customer not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "svc-token", time.Second)
	ctx := context.Background()

	ok, err := c.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "inactive customer")

	ok, err = c.Exists(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(ctx, 4)
	require.Error(t, err)
}

func TestClientFailsClosedWhenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "wrong", time.Second).Exists(context.Background(), 1)
	require.Error(t, err)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", 200*time.Millisecond).Exists(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to reach customers api")
}
