package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFile(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 10_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/avatar", r.URL.Path)
		assert.Equal(t, "Bearer access-A", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, "me.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, content, got)

		writeJSON(w, http.StatusOK, map[string]string{"url": "https://cdn/me.png"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, newTestStore(t, "access-A", "refresh-R"))

	var mu sync.Mutex
	var progress []int
	var out struct{ URL string }
	err := c.UploadFile(context.Background(), "/user/avatar",
		File{Name: "me.png", ContentType: "image/png", Content: bytes.NewReader(content)},
		func(p int) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		}, &out)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/me.png", out.URL)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
}

func TestUploadFile_ReplaysAfterRefresh(t *testing.T) {
	var uploads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/upload", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		if r.Header.Get("Authorization") != "Bearer access-B" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, "payload", string(got))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, refreshOK("access-B", "refresh-S"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, newTestStore(t, "access-A", "refresh-R"))

	err := c.UploadFile(context.Background(), "upload", File{Name: "a.txt", Content: strings.NewReader("payload")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), uploads.Load())
}

func TestProgressReader(t *testing.T) {
	var got []int
	r := newProgressReader(strings.NewReader("abcd"), 4, func(p int) { got = append(got, p) })

	buf := make([]byte, 1)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []int{25, 50, 75, 100}, got)
}
