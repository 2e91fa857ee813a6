package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	client := NewClient(nil)
	var buf bytes.Buffer
	var lastProgress int64
	n, err := client.Download(context.Background(), srv.URL, &buf, func(copied int64) { lastProgress = copied })
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), n)
	assert.Equal(t, "hello world", buf.String())
	assert.Equal(t, int64(len("hello world")), lastProgress)
}

func TestClientGetNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(nil)
	client.http.RetryMax = 0
	_, err := client.Get(context.Background(), srv.URL)
	assert.Error(t, err)
}
