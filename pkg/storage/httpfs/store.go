// Copyright © 2018 One Concern

// Package httpfs exposes a read-only store over a plain web server.
package httpfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"go.uber.org/zap"
)

// DefaultHeaderTimeout bounds the wait for response headers. Bodies are bounded by the request context only.
const DefaultHeaderTimeout = time.Minute

// Option is a functor to pass optional parameters to the http store
type Option func(*httpFS)

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(h *httpFS) {
		if logger != nil {
			h.l = logger
		}
	}
}

// HeaderTimeout sets how long to wait for response headers with the default client
func HeaderTimeout(timeout time.Duration) Option {
	return func(h *httpFS) {
		if timeout > 0 {
			h.headerTimeout = timeout
		}
	}
}

// Client overrides the http client. The client must not decompress responses transparently.
func Client(client *http.Client) Option {
	return func(h *httpFS) {
		if client != nil {
			h.client = client
		}
	}
}

type httpFS struct {
	base          *url.URL
	client        *http.Client
	headerTimeout time.Duration
	l             *zap.Logger
}

// New builds a read-only store fetching objects relative to some base URL.
//
// The default transport never negotiates compression, so that the gzip-compressed
// index is received exactly as published. It sets no overall timeout: downloads of
// large objects are only interrupted by the request context.
func New(baseURL string, opts ...Option) (storage.Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, status.ErrInvalidResource.Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, status.ErrInvalidResource.Wrap(fmt.Errorf("%q", baseURL))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	h := &httpFS{
		base:          u,
		headerTimeout: DefaultHeaderTimeout,
		l:             zap.NewNop(),
	}
	for _, apply := range opts {
		apply(h)
	}
	if h.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DisableCompression = true
		transport.ResponseHeaderTimeout = h.headerTimeout
		h.client = &http.Client{Transport: transport}
	}
	return h, nil
}

func (h *httpFS) String() string {
	return h.base.String()
}

func (h *httpFS) objectURL(key string) string {
	return h.base.ResolveReference(&url.URL{Path: url.PathEscape(key)}).String()
}

func (h *httpFS) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.objectURL(key), nil)
	if err != nil {
		return nil, err
	}
	h.l.Debug("http request", zap.String("method", method), zap.String("url", req.URL.String()))
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, toSentinelErrors(key, resp.StatusCode)
	}
	return resp, nil
}

func (h *httpFS) Has(ctx context.Context, key string) (bool, error) {
	resp, err := h.do(ctx, http.MethodHead, key)
	if err != nil {
		if isNotExists(err) {
			return false, nil
		}
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

func (h *httpFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := h.do(ctx, http.MethodGet, key)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (h *httpFS) Put(context.Context, string, io.Reader, bool) error {
	return status.ErrNotSupported
}

func (h *httpFS) Delete(context.Context, string) error {
	return status.ErrNotSupported
}

func (h *httpFS) Keys(context.Context) ([]string, error) {
	return nil, status.ErrNotSupported
}

func (h *httpFS) Clear(context.Context) error {
	return status.ErrNotSupported
}
