package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"mcfetch/internal/logging"
	"mcfetch/internal/progress"
)

func TestMirrorKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://resources.download.minecraft.net/ab/abcdef", "resources.download.minecraft.net/ab/abcdef", false},
		{"https://libraries.minecraft.net/com/mojang/x.jar", "libraries.minecraft.net/com/mojang/x.jar", false},
		{"https://example.com", "example.com/", false},
		{"/relative/only", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		got, err := MirrorKey(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestBucketSource(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	src := &BucketSource{Bucket: bucket}
	defer src.Close()

	data := []byte("asset bytes from the mirror")
	require.NoError(t, bucket.WriteAll(ctx, "resources.example.net/ab/abcd", data, nil))

	body, err := src.Open(ctx, "https://resources.example.net/ab/abcd")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), body.Size)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, data, got)

	_, err = src.Open(ctx, "https://resources.example.net/ff/missing")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFetchFromBucketMirror(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	src := &BucketSource{Bucket: bucket}
	defer src.Close()

	data := []byte("library jar")
	require.NoError(t, bucket.WriteAll(ctx, "libraries.example.net/org/lib.jar", data, nil))

	dest := filepath.Join(t.TempDir(), "libraries", "org", "lib.jar")
	fp := progress.NewFileProgress("lib")
	f := NewFetcher(src, Options{VerifyAfterWrite: true}, logging.Discard())
	require.NoError(t, f.Fetch(ctx, FileJob{Path: dest, URL: "https://libraries.example.net/org/lib.jar", Hash: sha1Hex(data)}, fp))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.True(t, fp.Finished())
}

func TestOpenBucketSourceBadURL(t *testing.T) {
	_, err := OpenBucketSource(context.Background(), "nosuchscheme://bucket")
	assert.Error(t, err)
}

func TestHTTPSourceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, "fine")
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client())
	body, err := src.Open(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, int64(4), body.Size)
	body.Close()

	_, err = src.Open(context.Background(), srv.URL+"/nope")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, se.Temporary())

	_, err = src.Open(context.Background(), srv.URL+"/busy")
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}

func TestFetchErrorMatching(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := error(&FetchError{Kind: ErrIO, Path: "/p", URL: "https://u", Err: cause})
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "/p")
	assert.Contains(t, err.Error(), "https://u")
}
