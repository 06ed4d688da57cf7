// Package files lays out the download tree and fingerprints downloaded files.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SlugCeiling is the default maximum slug length.
const SlugCeiling = 60

// hashBlockSize bounds memory while hashing arbitrarily large files.
const hashBlockSize = 128 * 1024

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug folds text to ASCII, lower-cases it and joins alphanumeric runs with
// single hyphens. Slugs longer than ceiling are cut back to a word boundary.
func Slug(text string, ceiling int) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(fold, text)
	if err != nil {
		ascii = text
	}

	slug := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(ascii), "-"), "-")
	if ceiling > 0 && len(slug) > ceiling {
		slug = slug[:ceiling]
		if i := strings.LastIndex(slug, "-"); i >= 0 {
			slug = slug[:i]
		}
	}
	return slug
}

var separators = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// RecordID derives the per-dataset folder identifier: the persistent
// identifier of the source URL when present, else the file id, with path
// separators replaced. The result is always a single path element.
func RecordID(sourceURL, fileID string) string {
	id := fileID
	if i := strings.LastIndex(sourceURL, "persistentId="); i >= 0 {
		id = sourceURL[i+len("persistentId="):]
	}
	id = separators.Replace(id)
	if strings.Trim(id, ".") == "" {
		id = strings.Repeat("_", max(len(id), 1))
	}
	return id
}

// Layout resolves download destinations under a project root.
type Layout struct {
	Root      string
	Downloads string
}

// NewLayout returns a Layout whose download directory is resolved against
// root unless it is absolute.
func NewLayout(root, downloads string) *Layout {
	if !filepath.IsAbs(downloads) {
		downloads = filepath.Join(root, downloads)
	}
	return &Layout{Root: root, Downloads: downloads}
}

// Dir returns <downloads>/<label>/<slug>-<recordID>, or <recordID> alone when
// the title yields no slug. The directory is not created.
func (l *Layout) Dir(label, recordID, title string) string {
	folder := recordID
	if slug := Slug(title, SlugCeiling); slug != "" {
		folder = slug + "-" + recordID
	}
	return filepath.Join(l.Downloads, label, folder)
}

// Rel returns p relative to the project root, or p unchanged when it cannot
// be expressed that way.
func (l *Layout) Rel(p string) string {
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return rel
}

// Stage creates a fresh staging directory under the download tree. Files
// pulled there stay out of the final layout until they are placed.
func (l *Layout) Stage() (string, error) {
	if err := os.MkdirAll(l.Downloads, 0o755); err != nil {
		return "", eris.Wrapf(err, "files: create %s", l.Downloads)
	}
	dir, err := os.MkdirTemp(l.Downloads, ".incoming-")
	if err != nil {
		return "", eris.Wrap(err, "files: create staging dir")
	}
	return dir, nil
}

// Place moves the staged file into dir under its own name. An occupied name
// is never overwritten: the file is stored as <stem>-<tag><ext> instead.
func Place(staged, dir, tag string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "files: create %s", dir)
	}
	name := filepath.Base(staged)
	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); err == nil {
		ext := filepath.Ext(name)
		target = filepath.Join(dir, strings.TrimSuffix(name, ext)+"-"+tag+ext)
	}
	if err := os.Rename(staged, target); err != nil {
		return "", eris.Wrapf(err, "files: move %s", name)
	}
	return target, nil
}

// SHA256 returns the hex digest of the file at path, read in 128 KiB blocks.
func SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "files: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashBlockSize)); err != nil {
		return "", eris.Wrapf(err, "files: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
