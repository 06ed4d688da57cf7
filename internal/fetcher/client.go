package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/qda-harvester/internal/resilience"
)

// Options configures a Client.
type Options struct {
	// Name labels log lines, usually the source key.
	Name      string
	UserAgent string
	// Timeout bounds API requests. Default: 30s.
	Timeout time.Duration
	// DownloadTimeout bounds the wait for response headers and for each
	// read of a download body. A transfer that keeps delivering bytes is
	// never cut off. Default: 120s.
	DownloadTimeout time.Duration
	// Interval is the minimum spacing between requests. Zero disables
	// throttling.
	Interval time.Duration
	// Backoff is the first retry delay for 429 responses and failed
	// downloads; it doubles each attempt. Default: 2s.
	Backoff time.Duration
	// Headers are sent with every request.
	Headers map[string]string
}

// Client issues the requests of one source. It is not safe for concurrent
// use by more than one harvest.
type Client struct {
	opts     Options
	api      *http.Client
	download *http.Client
	limiter  *rate.Limiter
	ftp      *FTPClient
	log      *zap.Logger
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DownloadTimeout == 0 {
		opts.DownloadTimeout = 120 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "qda-harvester/1.0"
	}
	if opts.Backoff == 0 {
		opts.Backoff = 2 * time.Second
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	downloads := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.DownloadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		opts:     opts,
		api:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		download: &http.Client{Transport: downloads},
		limiter:  rate.NewLimiter(limit, 1),
		ftp:      NewFTPClient(FTPOptions{Timeout: opts.Timeout}),
		log:      zap.L().With(zap.String("component", "fetcher"), zap.String("source", opts.Name)),
	}
}

// UserAgent returns the user agent sent with every request.
func (c *Client) UserAgent() string {
	return c.opts.UserAgent
}

// rateLimitRetry retries only 429 responses: three attempts, doubling delay.
func (c *Client) rateLimitRetry(rawURL string) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: c.opts.Backoff,
		Multiplier:     2,
		ShouldRetry: func(err error) bool {
			return IsStatus(err, http.StatusTooManyRequests)
		},
		OnRetry: func(attempt int, _ error) {
			c.log.Warn("rate limited (429), backing off",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
			)
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do throttles, sends and checks one API request, retrying on 429.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	return resilience.DoVal(ctx, c.rateLimitRetry(rawURL), func(ctx context.Context) (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := c.newRequest(ctx, method, rawURL, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.api.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: %s %s", method, rawURL)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		return resp, nil
	})
}

// Open performs a GET and returns the response body. The caller closes it.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Get performs a GET and returns the whole response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body of %s", rawURL)
	}
	return data, nil
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, rawURL, out)
}

// PostJSON sends payload as a JSON body and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "fetcher: encode request body")
	}
	resp, err := c.do(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, rawURL, out)
}

func decodeJSON(resp *http.Response, rawURL string, out any) error {
	defer resp.Body.Close() //nolint:errcheck
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "fetcher: decode json from %s", rawURL)
	}
	return nil
}

// Pull streams rawURL into dir, creating it if needed, and returns the local
// path. Connection and read failures, including a body that stalls for
// longer than DownloadTimeout, are retried with exponential backoff; status
// errors are returned at once so callers can act on 403. The file is named
// filename, else from Content-Disposition, else from the URL path.
func (c *Client) Pull(ctx context.Context, rawURL, dir, filename string) (string, error) {
	if strings.HasPrefix(strings.ToLower(rawURL), "ftp://") {
		return c.ftp.Pull(ctx, rawURL, dir, filename)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create %s", dir)
	}

	retry := resilience.DownloadRetryConfig()
	retry.InitialBackoff = c.opts.Backoff
	retry.OnRetry = resilience.RetryLogger(c.opts.Name, "download "+rawURL)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "fetcher: rate limiter wait")
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.download.Do(req)
		if err != nil {
			return "", eris.Wrapf(err, "fetcher: download %s", rawURL)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}

		name := filename
		if name == "" {
			name = FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
		}
		if name == "" {
			name = FilenameFromURL(rawURL)
		}
		dest := filepath.Join(dir, filepath.Base(name))

		body := newIdleReader(resp.Body, c.opts.DownloadTimeout, cancel)
		defer body.stop()
		if err := writeFile(dest, body); err != nil {
			return "", err
		}
		return dest, nil
	})
}

// ErrStalled reports a download body that delivered no bytes within the
// download timeout.
var ErrStalled = eris.New("fetcher: download stalled")

// idleReader cancels the request when no bytes arrive for idle. Every read
// that returns data restarts the clock.
type idleReader struct {
	r       io.Reader
	idle    time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

func newIdleReader(r io.Reader, idle time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, idle: idle}
	ir.timer = time.AfterFunc(idle, func() {
		ir.stalled.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && !ir.stalled.Load() {
		ir.timer.Reset(ir.idle)
	}
	if err != nil && err != io.EOF && ir.stalled.Load() {
		err = ErrStalled
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}

// writeFile copies r into path. Read failures are marked transient so the
// download is retried.
func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "fetcher: create %s", path)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return resilience.NewTransientError(eris.Wrapf(err, "fetcher: write %s", path))
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "fetcher: close %s", path)
	}
	return nil
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header, or "" when there is none.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(params["filename"])
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

// FilenameFromURL returns the unescaped last path segment of rawURL, or
// "download" when the path has none.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}
