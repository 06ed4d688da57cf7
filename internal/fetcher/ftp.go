package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/resilience"
)

// FTPOptions configures the FTP client.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPClient downloads files from anonymous FTP servers. Some archives still
// link dataset files over ftp://.
type FTPClient struct {
	opts FTPOptions
}

// NewFTPClient creates a new FTPClient with the given options.
func NewFTPClient(opts FTPOptions) *FTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPClient{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, p string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	p = u.Path
	if p == "" || p == "/" {
		return "", "", eris.New("fetcher: empty path in ftp url")
	}
	return host, p, nil
}

// ftpConnReader closes the FTP response and the connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

// Open logs in anonymously and starts retrieving the file. The caller must
// close the returned reader to release the connection.
func (f *FTPClient) Open(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, p, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", p))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: ftp dial"))
	}

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}

	resp, err := conn.Retr(p)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp retrieve")
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// Pull downloads ftpURL into dir with the same retry budget as HTTP
// downloads and returns the local path.
func (f *FTPClient) Pull(ctx context.Context, ftpURL, dir, filename string) (string, error) {
	_, p, err := parseFTPURL(ftpURL)
	if err != nil {
		return "", err
	}
	if filename == "" {
		filename = path.Base(p)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create %s", dir)
	}
	dest := filepath.Join(dir, filepath.Base(filename))

	return resilience.DoVal(ctx, resilience.DownloadRetryConfig(), func(ctx context.Context) (string, error) {
		rc, err := f.Open(ctx, ftpURL)
		if err != nil {
			return "", err
		}
		defer rc.Close() //nolint:errcheck

		if err := writeFile(dest, rc); err != nil {
			return "", err
		}
		return dest, nil
	})
}
