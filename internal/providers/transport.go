package providers

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 120 * time.Second

var (
	globalResolver     *dnscache.Resolver
	globalResolverOnce sync.Once
	resolverMu         sync.RWMutex
	resolverRefreshTTL = 5 * time.Minute
)

// SetDNSCacheTTL configures the refresh interval of the shared DNS cache.
// Call before the first client is created.
func SetDNSCacheTTL(ttl time.Duration) {
	resolverMu.Lock()
	defer resolverMu.Unlock()

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	resolverRefreshTTL = ttl
}

func getDNSResolver() *dnscache.Resolver {
	globalResolverOnce.Do(func() {
		resolverMu.RLock()
		ttl := resolverRefreshTTL
		resolverMu.RUnlock()

		log.Debug().Dur("ttl", ttl).Msg("Initializing DNS resolver cache")
		globalResolver = &dnscache.Resolver{}

		go func() {
			ticker := time.NewTicker(ttl)
			defer ticker.Stop()
			for range ticker.C {
				globalResolver.Refresh(true)
			}
		}()
	})
	return globalResolver
}

// dialContextWithCache resolves through the shared DNS cache. Reasoning
// engine calls hit the same endpoint for every step of every investigation,
// so repeated lookups are wasted work.
func dialContextWithCache(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	ips, err := getDNSResolver().LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
}

// newHTTPClient builds the long-lived HTTP client shared by a provider. The
// client is reused across investigations; requests are independent so no
// extra locking is needed.
func newHTTPClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if cfg.DNSCacheTTL > 0 {
		SetDNSCacheTTL(cfg.DNSCacheTTL)
	}

	transport := &http.Transport{
		DialContext:         dialContextWithCache,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.InsecureTLS {
		log.Warn().Msg("TLS certificate verification disabled for reasoning engine requests")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
