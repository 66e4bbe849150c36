package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of a feed response is read into memory.
const maxBodyBytes = 64 << 20

// Fetcher downloads the partner feed. It never retries: a failed attempt
// simply produces no update for that cycle.
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher builds a Fetcher whose every request is bounded by timeout.
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	return &Fetcher{url: url, client: newHTTPClient(timeout)}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// URL returns the feed address.
func (f *Fetcher) URL() string { return f.url }

// Fetch issues one GET and returns the raw body. Failures are *FetchError.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.FetchLatency.Observe(time.Since(start).Seconds()) }()

	body, err := f.fetch(ctx)
	if err != nil {
		var kind FetchErrorKind = KindTransport
		if fe, ok := err.(*FetchError); ok {
			kind = fe.Kind
		}
		metrics.FetchErrors.WithLabelValues(string(kind)).Inc()
		return nil, err
	}
	logger.Log.Debug("feed fetched", zap.String("url", f.url), zap.Int("bytes", len(body)))
	return body, nil
}

func (f *Fetcher) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: f.url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: KindHTTPStatus, URL: f.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
