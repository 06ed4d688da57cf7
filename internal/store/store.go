// Package store persists admitted file records and enforces their uniqueness.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qda-harvester/internal/model"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = eris.New("store: file not found")

// Match identifies a record by source, download URL and file name. An empty
// FileName matches any name.
type Match struct {
	SourceName  string
	DownloadURL string
	FileName    string
}

// Filter selects records for Count and List. Zero fields are ignored.
type Filter struct {
	Source         string `json:"source,omitempty"`
	QDAOnly        bool   `json:"qda_only,omitempty"`
	RestrictedOnly bool   `json:"restricted_only,omitempty"`
	// Search matches title, description, keywords and tags, ignoring case.
	Search   string `json:"search,omitempty"`
	Language string `json:"language,omitempty"`
	Software string `json:"software,omitempty"`
	// FileType is an exact extension; a missing leading dot is added.
	FileType    string `json:"file_type,omitempty"`
	HasSoftware bool   `json:"has_software,omitempty"`
	HasKeywords bool   `json:"has_keywords,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Summary aggregates the whole store.
type Summary struct {
	Total           int   `json:"total"`
	QDA             int   `json:"qda"`
	Downloaded      int   `json:"downloaded"`
	Restricted      int   `json:"restricted"`
	MetadataOnly    int   `json:"metadata_only"`
	Sources         int   `json:"sources"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
}

// Dimension is a column records can be grouped by.
type Dimension string

const (
	BySource   Dimension = "source"
	ByLanguage Dimension = "language"
	BySoftware Dimension = "software"
	ByFileType Dimension = "file_type"
	ByLicense  Dimension = "license"
)

// Bucket is one group of a Breakdown.
type Bucket struct {
	Value      string `json:"value"`
	Total      int    `json:"total"`
	QDA        int    `json:"qda"`
	Downloaded int    `json:"downloaded"`
	Restricted int    `json:"restricted"`
}

// Store defines the persistence interface of the harvester.
type Store interface {
	// InsertIfAbsent inserts f unless a record matching m exists, and reports
	// whether it did. On insert f.ID is set.
	InsertIfAbsent(ctx context.Context, m Match, f *model.File) (bool, error)
	// FindByHash returns the record with the given content hash, or nil.
	FindByHash(ctx context.Context, hash string) (*model.File, error)
	// FindBy returns the first record matching m, or nil.
	FindBy(ctx context.Context, m Match) (*model.File, error)
	Count(ctx context.Context, f Filter) (int, error)

	List(ctx context.Context, f Filter) ([]model.File, error)
	Get(ctx context.Context, id int64) (*model.File, error)
	Summary(ctx context.Context) (*Summary, error)
	Breakdown(ctx context.Context, dim Dimension, limit int) ([]Bucket, error)
	// Wipe deletes every record and returns how many there were.
	Wipe(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}
