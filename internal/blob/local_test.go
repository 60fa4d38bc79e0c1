package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/media/")
	require.NoError(t, err)

	url, err := l.Upload(context.Background(), "products/p-1.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/media/products/p-1.png", url)

	got, err := os.ReadFile(filepath.Join(dir, "products", "p-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(got))

	_, err = l.Upload(context.Background(), "products/p-1.png", []byte("v2"))
	require.NoError(t, err)
	got, err = os.ReadFile(filepath.Join(dir, "products", "p-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestUpload_RejectsBadPaths(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, p := range []string{"", "  ", "../etc/passwd", "a/../../b", "a/./b", "a//b", `a\b`, "a/"} {
		t.Run(p, func(t *testing.T) {
			_, err := l.Upload(context.Background(), p, []byte("x"))
			assert.ErrorIs(t, err, ErrBadPath)
		})
	}
}

func TestUpload_CancelledContext(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Upload(ctx, "x.png", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandler(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)
	_, err = l.Upload(context.Background(), "staff/s-1.jpg", []byte("jpeg"))
	require.NoError(t, err)

	srv := http.StripPrefix("/media", l.Handler())

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media/staff/s-1.jpg", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg", rr.Body.String())

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media/staff/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
