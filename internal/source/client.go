// Package source fetches log files from remote HTTP exports for the
// ingest API's pull mode.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sdko-org/logmill/internal/config"
	"github.com/sirupsen/logrus"
)

type Client struct {
	httpClient *http.Client
	log        *logrus.Entry
	user       string
	password   string
}

type loggingTransport struct {
	log *logrus.Entry
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := http.DefaultTransport.RoundTrip(req)

	fields := logrus.Fields{
		"method":   req.Method,
		"url":      req.URL.Redacted(),
		"duration": time.Since(start),
	}
	if err != nil {
		t.log.WithFields(fields).WithError(err).Warn("Upstream request failed")
		return nil, err
	}
	fields["status_code"] = resp.StatusCode
	t.log.WithFields(fields).Debug("Upstream request")
	return resp, nil
}

func NewClient(logger *logrus.Logger, cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.SourceTimeout,
			Transport: &loggingTransport{log: logger.WithField("component", "source_transport")},
		},
		log:      logger.WithField("component", "source_client"),
		user:     cfg.SourceUser,
		password: cfg.SourcePassword,
	}
}

// Fetch downloads a remote log file and returns its body stream. The
// caller closes it.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported source url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Logmill/1.0")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("url", u.Redacted()).Error("Source fetch failed")
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", u.Redacted(), resp.StatusCode)
	}

	return resp.Body, nil
}
