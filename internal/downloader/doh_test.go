package downloader

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoHServer(t *testing.T, answers map[string]string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var lookups atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal(t, "application/dns-json", r.Header.Get("Accept"))
		name := r.URL.Query().Get("name")
		resp := doHResponse{}
		if ip, ok := answers[name]; ok {
			resp.Answer = []doHAnswer{
				{Name: name, Type: 5, Data: "alias." + name},
				{Name: name, Type: 1, TTL: 300, Data: ip},
			}
		} else {
			resp.Status = 3 // NXDOMAIN
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &lookups
}

func TestDoHResolve(t *testing.T) {
	srv, lookups := newDoHServer(t, map[string]string{"assets.test": "127.0.0.1"})
	r := NewDoHResolver(srv.URL)

	ip, err := r.Resolve(context.Background(), "assets.test")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	_, err = r.Resolve(context.Background(), "assets.test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), lookups.Load(), "answer is cached for its TTL")

	_, err = r.Resolve(context.Background(), "missing.test")
	assert.ErrorContains(t, err, "DNS error code: 3")
}

func TestDoHTransportDialsResolvedAddress(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "via doh")
	}))
	defer target.Close()

	u, err := url.Parse(target.URL)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	doh, _ := newDoHServer(t, map[string]string{"origin.test": "127.0.0.1"})
	client := NewHTTPClient(ClientOptions{Resolver: NewDoHResolver(doh.URL)})
	// keep the test hermetic even if a proxy is configured in the environment
	client.Transport.(*http.Transport).Proxy = nil

	body, err := NewHTTPSource(client).Open(context.Background(), "http://origin.test:"+port+"/x")
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "via doh", string(got))
}
