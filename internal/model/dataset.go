package model

import (
	"path"
	"strings"
)

// DatasetHit is one search result from a source. Only SourceURL is stable;
// the descriptive fields are whatever the search endpoint happened to return.
type DatasetHit struct {
	SourceName    string   `json:"source_name"`
	SourceURL     string   `json:"source_url"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Authors       string   `json:"authors,omitempty"`
	DatePublished string   `json:"date_published,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Language      []string `json:"language,omitempty"`
	// Placeholder is true until FetchMetadata has enriched the hit.
	Placeholder bool `json:"placeholder"`
}

// DatasetMetadata is the enriched form of a hit. Its dataset-level fields are
// flattened onto every File record admitted from it.
type DatasetMetadata struct {
	SourceName         string           `json:"source_name"`
	SourceURL          string           `json:"source_url"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Authors            string           `json:"authors"`
	LicenseType        string           `json:"license_type"`
	LicenseURL         string           `json:"license_url"`
	DatePublished      string           `json:"date_published"`
	Tags               []string         `json:"tags"`
	Keywords           []string         `json:"keywords"`
	KindOfData         []string         `json:"kind_of_data"`
	Language           []string         `json:"language"`
	Software           []string         `json:"software"`
	GeographicCoverage []string         `json:"geographic_coverage"`
	Depositor          string           `json:"depositor"`
	Producer           []string         `json:"producer"`
	Publication        []string         `json:"publication"`
	DateOfCollection   string           `json:"date_of_collection"`
	TimePeriodCovered  string           `json:"time_period_covered"`
	UploaderName       string           `json:"uploader_name"`
	UploaderEmail      string           `json:"uploader_email"`
	Files              []FileDescriptor `json:"files"`
}

// FileDescriptor describes one remote file of a dataset manifest. It never
// carries a local path.
type FileDescriptor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
	FriendlyType string `json:"friendly_type"`
	DownloadURL  string `json:"download_url"`
	Restricted   bool   `json:"restricted"`
	// APIChecksum is the source-computed checksum as "ALGO:hex".
	APIChecksum string `json:"api_checksum"`
}

// Ext returns the lower-cased extension of the file name, including the dot.
func (f FileDescriptor) Ext() string {
	return strings.ToLower(path.Ext(f.Name))
}
