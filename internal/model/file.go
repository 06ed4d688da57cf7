package model

import (
	"strings"
	"time"
)

// FileState is the terminal admission outcome of a persisted record.
type FileState string

const (
	StateDownloaded FileState = "downloaded"
	StateRestricted FileState = "restricted"
	StateMetadata   FileState = "metadata"
)

// Notes written on metadata-only records.
const (
	NoteIrrelevantType = "irrelevant file type"
	NoteRestricted     = "access restricted"
)

// File is the persisted record of one admitted file. Dataset-level fields are
// denormalized onto every file of the dataset.
type File struct {
	ID                 int64      `json:"id"`
	SourceName         string     `json:"source_name"`
	SourceURL          string     `json:"source_url"`
	DownloadURL        string     `json:"download_url"`
	FileName           string     `json:"file_name"`
	FileType           string     `json:"file_type"`
	FileHash           string     `json:"file_hash,omitempty"`
	FileSizeBytes      int64      `json:"file_size_bytes"`
	LocalPath          string     `json:"local_path,omitempty"`
	LocalDirectory     string     `json:"local_directory,omitempty"`
	LicenseType        string     `json:"license_type"`
	LicenseURL         string     `json:"license_url"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Authors            string     `json:"authors"`
	DatePublished      string     `json:"date_published"`
	Tags               string     `json:"tags"`
	Keywords           string     `json:"keywords"`
	KindOfData         string     `json:"kind_of_data"`
	Language           string     `json:"language"`
	Software           string     `json:"software"`
	GeographicCoverage string     `json:"geographic_coverage"`
	ContentType        string     `json:"content_type"`
	FriendlyType       string     `json:"friendly_type"`
	Restricted         bool       `json:"restricted"`
	APIChecksum        string     `json:"api_checksum"`
	Depositor          string     `json:"depositor"`
	Producer           string     `json:"producer"`
	Publication        string     `json:"publication"`
	DateOfCollection   string     `json:"date_of_collection"`
	TimePeriodCovered  string     `json:"time_period_covered"`
	UploaderName       string     `json:"uploader_name"`
	UploaderEmail      string     `json:"uploader_email"`
	IsQDAFile          bool       `json:"is_qda_file"`
	Notes              string     `json:"notes,omitempty"`
	DownloadedAt       *time.Time `json:"downloaded_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// State derives the terminal state of the record.
func (f *File) State() FileState {
	switch {
	case f.LocalPath != "":
		return StateDownloaded
	case f.Restricted || strings.Contains(f.Notes, "restricted"):
		return StateRestricted
	default:
		return StateMetadata
	}
}

// JoinList renders a repeated metadata field the way it is persisted.
func JoinList(values []string) string {
	return strings.Join(values, "; ")
}

// NewFile flattens the dataset metadata and one of its file descriptors into
// a record. Local path, hash, notes and timestamps are left to the caller.
func NewFile(meta *DatasetMetadata, fd FileDescriptor, isQDA bool) *File {
	return &File{
		SourceName:         meta.SourceName,
		SourceURL:          meta.SourceURL,
		DownloadURL:        fd.DownloadURL,
		FileName:           fd.Name,
		FileType:           fd.Ext(),
		FileSizeBytes:      fd.Size,
		LicenseType:        meta.LicenseType,
		LicenseURL:         meta.LicenseURL,
		Title:              meta.Title,
		Description:        meta.Description,
		Authors:            meta.Authors,
		DatePublished:      meta.DatePublished,
		Tags:               JoinList(meta.Tags),
		Keywords:           JoinList(meta.Keywords),
		KindOfData:         JoinList(meta.KindOfData),
		Language:           JoinList(meta.Language),
		Software:           JoinList(meta.Software),
		GeographicCoverage: JoinList(meta.GeographicCoverage),
		ContentType:        fd.ContentType,
		FriendlyType:       fd.FriendlyType,
		Restricted:         fd.Restricted,
		APIChecksum:        fd.APIChecksum,
		Depositor:          meta.Depositor,
		Producer:           JoinList(meta.Producer),
		Publication:        JoinList(meta.Publication),
		DateOfCollection:   meta.DateOfCollection,
		TimePeriodCovered:  meta.TimePeriodCovered,
		UploaderName:       meta.UploaderName,
		UploaderEmail:      meta.UploaderEmail,
		IsQDAFile:          isQDA,
	}
}
