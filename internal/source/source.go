// Package source adapts the remote research-data repositories into one
// search, metadata and download contract.
package source

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/fetcher"
	"github.com/sells-group/qda-harvester/internal/model"
)

// MaxHits caps the hits returned by a single Search call.
const MaxHits = 500

// Source is one remote repository.
type Source interface {
	// Label is the registry key, used for display and download folders.
	Label() string
	// Search returns placeholder hits for query. fileType is a hint that
	// adapters may ignore.
	Search(ctx context.Context, query, fileType string) ([]model.DatasetHit, error)
	// FetchMetadata resolves a hit's source URL into full metadata and its
	// file manifest.
	FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error)
	// PullFile streams one file into dir and returns the local path.
	PullFile(ctx context.Context, rawURL, dir, filename string) (string, error)
}

// Options carries the transport settings shared by every adapter.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	// Backoff is the first retry delay for 429s and failed downloads.
	Backoff time.Duration
	// NoThrottle drops the per-source request spacing.
	NoThrottle bool
}

// BrowserUserAgent is sent to hosts that reject non-browser clients.
const BrowserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func (o Options) client(name string, interval time.Duration, headers map[string]string) *fetcher.Client {
	if o.NoThrottle {
		interval = 0
	}
	return fetcher.NewClient(fetcher.Options{
		Name:            name,
		UserAgent:       o.UserAgent,
		Timeout:         o.Timeout,
		DownloadTimeout: o.DownloadTimeout,
		Interval:        interval,
		Backoff:         o.Backoff,
		Headers:         headers,
	})
}

// puller implements PullFile on top of a fetcher.Client.
type puller struct {
	client *fetcher.Client
}

func (p puller) PullFile(ctx context.Context, rawURL, dir, filename string) (string, error) {
	return p.client.Pull(ctx, rawURL, dir, filename)
}

// capHits truncates hits at MaxHits. It logs when results were left behind:
// either hits were cut or the source reported more than were fetched.
func capHits(log *zap.Logger, query string, hits []model.DatasetHit, more bool) []model.DatasetHit {
	if len(hits) > MaxHits {
		hits, more = hits[:MaxHits], true
	}
	if more && len(hits) >= MaxHits {
		log.Info("search capped", zap.String("query", query), zap.Int("cap", MaxHits))
	}
	return hits
}

// rangeText renders a start/end pair as "start – end".
func rangeText(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + " – " + end
	case start != "":
		return start
	default:
		return end
	}
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// flexString accepts a JSON string, number, boolean or list of those. Lists
// are joined with "; ".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, raw := range list {
			var s flexString
			if err := s.UnmarshalJSON(raw); err == nil && s != "" {
				parts = append(parts, string(s))
			}
		}
		*f = flexString(strings.Join(parts, "; "))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(string(data), `"`))
	return nil
}

// flexList accepts a JSON list of strings or a single string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	var list []flexString
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s != "" {
				out = append(out, string(s))
			}
		}
		*f = out
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = nil
		return nil
	}
	*f = flexList{string(s)}
	return nil
}
