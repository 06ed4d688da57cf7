// Package fetcher is the transport shared by source adapters: throttled JSON
// and XML requests, streamed file downloads and FTP retrieval.
package fetcher

import (
	"context"
	"errors"
	"fmt"
)

// Puller streams one remote file into a directory and returns its local path.
type Puller interface {
	Pull(ctx context.Context, rawURL, dir, filename string) (string, error)
}

// StatusError reports a non-success HTTP status. Status errors are never
// retried except for 429 on API requests.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
