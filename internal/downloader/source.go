package downloader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const userAgent = "mcfetch/1.0"

// Body is an open response stream. Size is -1 when the length is unknown.
type Body struct {
	io.ReadCloser
	Size int64
}

// Source opens the remote content behind a job URL.
type Source interface {
	Open(ctx context.Context, rawURL string) (*Body, error)
}

// ClientOptions configures the HTTP client behind HTTPSource.
type ClientOptions struct {
	// Timeout bounds a whole request including the body. 0 disables it.
	Timeout time.Duration

	// ConnectTimeout bounds dialing. Default: 60s
	ConnectTimeout time.Duration

	// MaxIdleConnsPerHost sets the idle pool per origin. Default: 100
	MaxIdleConnsPerHost int

	// Resolver, when set, replaces system DNS for dialing.
	Resolver *DoHResolver
}

// NewHTTPClient builds a pooled client for high fan-out downloads.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 60 * time.Second
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}

	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	if opts.Resolver != nil {
		transport.DialContext = opts.Resolver.DialContext(dialer)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

// HTTPSource fetches job URLs with plain GET requests. Redirects follow the
// client's policy.
type HTTPSource struct {
	Client *http.Client
}

// NewHTTPSource wraps client; nil uses a default pooled client.
func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &HTTPSource{Client: client}
}

func (s *HTTPSource) Open(ctx context.Context, rawURL string) (*Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return &Body{ReadCloser: resp.Body, Size: resp.ContentLength}, nil
}

// BucketSource serves job URLs out of an object-storage mirror. The object
// key for a URL is its host followed by its path, so
// https://resources.example.net/ab/abcd is read from "resources.example.net/ab/abcd".
type BucketSource struct {
	Bucket *blob.Bucket
}

// OpenBucketSource opens the bucket at bucketURL, e.g. s3://my-mirror?region=eu-west-1.
// The matching gocloud driver must be linked in by the caller.
func OpenBucketSource(ctx context.Context, bucketURL string) (*BucketSource, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open mirror bucket: %w", err)
	}
	return &BucketSource{Bucket: b}, nil
}

func (s *BucketSource) Open(ctx context.Context, rawURL string) (*Body, error) {
	key, err := MirrorKey(rawURL)
	if err != nil {
		return nil, err
	}
	r, err := s.Bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, &StatusError{Code: http.StatusNotFound, Status: "404 object not in mirror: " + key}
		}
		return nil, err
	}
	return &Body{ReadCloser: r, Size: r.Size()}, nil
}

// Close releases the bucket.
func (s *BucketSource) Close() error {
	return s.Bucket.Close()
}

// MirrorKey maps a source URL to its object key in a mirror bucket.
func MirrorKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host + "/" + strings.TrimPrefix(u.Path, "/"), nil
}
