package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client performs resilient HTTP downloads: retryablehttp retries
// transient failures (connection reset, 5xx, rate limiting) with
// exponential backoff before a transfer is reported as failed.
type Client struct {
	http      *retryablehttp.Client
	userAgent string
}

// NewClient returns a Client with sane defaults: a 2-minute per-request
// timeout and up to 4 retries. logger may be nil to silence
// retryablehttp's own logging (the caller's ProgressReporter covers
// user-facing status instead).
func NewClient(logger *log.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.HTTPClient.Timeout = 2 * time.Minute
	if logger != nil {
		rc.Logger = logger
	} else {
		rc.Logger = nil
	}
	return &Client{http: rc, userAgent: "pkgtx/1.0"}
}

// Get issues a GET request and returns the response, whose body the
// caller must close. Any status other than 200 is returned as an error.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: creating request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: requesting %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch: %s: unexpected status %s", url, resp.Status)
	}
	return resp, nil
}

// Download streams url's body into w, optionally reporting bytes
// copied so far to onProgress (may be nil) as it goes.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, onProgress func(copied int64)) (int64, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if onProgress == nil {
		return io.Copy(w, resp.Body)
	}
	return io.Copy(w, &progressReader{r: resp.Body, onProgress: onProgress})
}

type progressReader struct {
	r          io.Reader
	copied     int64
	onProgress func(copied int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.copied += int64(n)
		p.onProgress(p.copied)
	}
	return n, err
}
