package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "query-orchestrator/1.0", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("Address,Status Code\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(5 * time.Second)

	body, err := c.Get(context.Background(), server.URL+"/ok")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "Address,Status Code\n", string(data))

	_, err = c.Get(context.Background(), server.URL+"/missing")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClient_GetHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClientFrom(server.Client()).Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
