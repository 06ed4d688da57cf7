package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qda-harvester/internal/model"
)

// fileColumns lists the persisted columns in schema order, without id.
var fileColumns = []string{
	"source_name", "source_url", "download_url", "file_name", "file_type",
	"file_hash", "file_size_bytes", "local_path", "local_directory",
	"license_type", "license_url", "title", "description", "authors",
	"date_published", "tags", "keywords", "kind_of_data", "language",
	"software", "geographic_coverage", "content_type", "friendly_type",
	"restricted", "api_checksum", "depositor", "producer", "publication",
	"date_of_collection", "time_period_covered", "uploader_name",
	"uploader_email", "is_qda_file", "notes", "downloaded_at", "created_at",
}

var selectColumns = "id, " + strings.Join(fileColumns, ", ")

// Columns returns every persisted column in schema order, id first.
func Columns() []string {
	return append([]string{"id"}, fileColumns...)
}

// placeholder renders the n-th (1-based) bind parameter of a dialect.
type placeholder func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func insertSQL(ph placeholder) string {
	params := make([]string, len(fileColumns))
	for i := range fileColumns {
		params[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO files (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		strings.Join(fileColumns, ", "), strings.Join(params, ", "))
}

// nullable maps "" to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func insertArgs(f *model.File) []any {
	var downloadedAt any
	if f.DownloadedAt != nil {
		downloadedAt = f.DownloadedAt.UTC()
	}
	return []any{
		f.SourceName, f.SourceURL, f.DownloadURL, f.FileName, f.FileType,
		nullable(f.FileHash), f.FileSizeBytes, nullable(f.LocalPath), nullable(f.LocalDirectory),
		f.LicenseType, f.LicenseURL, f.Title, f.Description, f.Authors,
		f.DatePublished, f.Tags, f.Keywords, f.KindOfData, f.Language,
		f.Software, f.GeographicCoverage, f.ContentType, f.FriendlyType,
		f.Restricted, f.APIChecksum, f.Depositor, f.Producer, f.Publication,
		f.DateOfCollection, f.TimePeriodCovered, f.UploaderName,
		f.UploaderEmail, f.IsQDAFile, nullable(f.Notes), downloadedAt, f.CreatedAt.UTC(),
	}
}

// matchWhere renders the predicate of a Match.
func matchWhere(m Match, ph placeholder) (string, []any) {
	where := fmt.Sprintf("source_name = %s AND download_url = %s", ph(1), ph(2))
	args := []any{m.SourceName, m.DownloadURL}
	if m.FileName != "" {
		where += fmt.Sprintf(" AND file_name = %s", ph(3))
		args = append(args, m.FileName)
	}
	return where, args
}

// restrictedExpr is true for records in the restricted state.
const restrictedExpr = "(local_path IS NULL AND (restricted = true OR COALESCE(notes, '') LIKE '%restricted%'))"

// filterWhere renders the WHERE clause of a Filter, starting placeholders at 1.
func filterWhere(f Filter, ph placeholder) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		params := make([]any, len(vals))
		for i := range vals {
			params[i] = ph(len(args) + i + 1)
		}
		conds = append(conds, fmt.Sprintf(cond, params...))
		args = append(args, vals...)
	}

	if f.Source != "" {
		add("source_name = %s", f.Source)
	}
	if f.QDAOnly {
		add("is_qda_file = %s", true)
	}
	if f.RestrictedOnly {
		conds = append(conds, restrictedExpr)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		add("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(keywords) LIKE %s OR LOWER(tags) LIKE %s)",
			like, like, like, like)
	}
	if f.Language != "" {
		add("LOWER(language) LIKE %s", "%"+strings.ToLower(f.Language)+"%")
	}
	if f.Software != "" {
		add("LOWER(software) LIKE %s", "%"+strings.ToLower(f.Software)+"%")
	}
	if f.FileType != "" {
		ext := strings.ToLower(f.FileType)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		add("file_type = %s", ext)
	}
	if f.HasSoftware {
		conds = append(conds, "software <> ''")
	}
	if f.HasKeywords {
		conds = append(conds, "keywords <> ''")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageClause renders LIMIT/OFFSET. Values are integers and inlined.
func pageClause(f Filter) string {
	var b strings.Builder
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			// SQLite requires a LIMIT before OFFSET.
			b.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&b, " OFFSET %d", f.Offset)
	}
	return b.String()
}

var dimensionColumns = map[Dimension]string{
	BySource:   "source_name",
	ByLanguage: "language",
	BySoftware: "software",
	ByFileType: "file_type",
	ByLicense:  "license_type",
}

// ParseDimension validates a breakdown dimension name.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := dimensionColumns[d]; !ok {
		return "", eris.Errorf("store: unknown dimension %q", s)
	}
	return d, nil
}

func breakdownSQL(dim Dimension, limit int) (string, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return "", eris.Errorf("store: unknown dimension %q", dim)
	}
	q := fmt.Sprintf(`SELECT COALESCE(NULLIF(%s, ''), '(none)') AS value,
	COUNT(*),
	SUM(CASE WHEN is_qda_file = true THEN 1 ELSE 0 END),
	SUM(CASE WHEN local_path IS NOT NULL THEN 1 ELSE 0 END),
	SUM(CASE WHEN %s THEN 1 ELSE 0 END)
FROM files GROUP BY 1 ORDER BY 2 DESC, 1`, col, restrictedExpr)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q, nil
}

const summarySQL = `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN is_qda_file = true THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN local_path IS NOT NULL THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN ` + restrictedExpr + ` THEN 1 ELSE 0 END), 0),
	COUNT(DISTINCT source_name),
	CAST(COALESCE(SUM(CASE WHEN local_path IS NOT NULL THEN file_size_bytes ELSE 0 END), 0) AS BIGINT)
FROM files`

type scannable interface {
	Scan(dest ...any) error
}

func scanFile(row scannable) (*model.File, error) {
	var f model.File
	var hash, localPath, localDir, notes *string
	var downloadedAt *time.Time

	err := row.Scan(&f.ID,
		&f.SourceName, &f.SourceURL, &f.DownloadURL, &f.FileName, &f.FileType,
		&hash, &f.FileSizeBytes, &localPath, &localDir,
		&f.LicenseType, &f.LicenseURL, &f.Title, &f.Description, &f.Authors,
		&f.DatePublished, &f.Tags, &f.Keywords, &f.KindOfData, &f.Language,
		&f.Software, &f.GeographicCoverage, &f.ContentType, &f.FriendlyType,
		&f.Restricted, &f.APIChecksum, &f.Depositor, &f.Producer, &f.Publication,
		&f.DateOfCollection, &f.TimePeriodCovered, &f.UploaderName,
		&f.UploaderEmail, &f.IsQDAFile, &notes, &downloadedAt, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.FileHash = deref(hash)
	f.LocalPath = deref(localPath)
	f.LocalDirectory = deref(localDir)
	f.Notes = deref(notes)
	f.DownloadedAt = downloadedAt
	return &f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
