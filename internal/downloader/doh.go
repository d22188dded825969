package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

type doHAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

type doHResponse struct {
	Status int         `json:"Status"`
	Answer []doHAnswer `json:"Answer"`
}

// DoHResolver resolves host names through a JSON DNS-over-HTTPS endpoint
// and caches answers for their TTL.
type DoHResolver struct {
	Endpoint string
	Client   *http.Client

	mu    sync.Mutex
	cache map[string]cachedAddr
}

type cachedAddr struct {
	ip      string
	expires time.Time
}

// NewDoHResolver creates a resolver for endpoint. The lookup client itself
// uses system DNS to reach the endpoint.
func NewDoHResolver(endpoint string) *DoHResolver {
	return &DoHResolver{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// DialContext returns a dial function that resolves through r before
// dialing with d.
func (r *DoHResolver) DialContext(d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		if net.ParseIP(host) != nil {
			return d.DialContext(ctx, network, addr)
		}

		ip, err := r.Resolve(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DoH resolution failed for %s: %w", host, err)
		}
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

// Resolve returns the first A record for domain.
func (r *DoHResolver) Resolve(ctx context.Context, domain string) (string, error) {
	r.mu.Lock()
	if c, ok := r.cache[domain]; ok && time.Now().Before(c.expires) {
		r.mu.Unlock()
		return c.ip, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Endpoint, nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("name", domain)
	q.Add("type", "A")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/dns-json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DoH server returned status: %s", resp.Status)
	}

	var dohResp doHResponse
	if err := json.NewDecoder(resp.Body).Decode(&dohResp); err != nil {
		return "", err
	}

	if dohResp.Status != 0 {
		return "", fmt.Errorf("DNS error code: %d", dohResp.Status)
	}

	// Type 1 is an A record; CNAME hops come first in the answer list.
	for _, ans := range dohResp.Answer {
		if ans.Type == 1 {
			ttl := time.Duration(ans.TTL) * time.Second
			if ttl <= 0 {
				ttl = time.Minute
			}
			r.mu.Lock()
			if r.cache == nil {
				r.cache = make(map[string]cachedAddr)
			}
			r.cache[domain] = cachedAddr{ip: ans.Data, expires: time.Now().Add(ttl)}
			r.mu.Unlock()
			return ans.Data, nil
		}
	}

	return "", fmt.Errorf("no A record found for %s", domain)
}
