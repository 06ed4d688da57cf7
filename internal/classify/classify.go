// Package classify decides which files of a dataset are worth downloading.
package classify

import (
	"strings"

	"github.com/sells-group/qda-harvester/internal/model"
)

// Markers of the REFI-QDA exchange standard in friendly-type labels
// ("REFI-QDA Project") and MIME types ("application/x-refiqda").
const (
	refiLabelMarker = "refi-qda"
	refiMIMEMarker  = "refiqda"
)

// Classifier holds the configured extension sets. The zero value recognizes
// only REFI-QDA markers.
type Classifier struct {
	qda         map[string]struct{}
	qualitative map[string]struct{}
}

// New builds a Classifier from extension lists. Extensions are matched
// case-insensitively and a missing leading dot is added.
func New(qdaFormats, qualitativeFormats []string) *Classifier {
	return &Classifier{
		qda:         toSet(qdaFormats),
		qualitative: toSet(qualitativeFormats),
	}
}

func toSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// IsQDAFile reports whether fd is a qualitative-data-analysis artifact, by
// extension or by the REFI-QDA marker in its declared types.
func (c *Classifier) IsQDAFile(fd model.FileDescriptor) bool {
	if _, ok := c.qda[fd.Ext()]; ok {
		return true
	}
	if strings.Contains(strings.ToLower(fd.FriendlyType), refiLabelMarker) {
		return true
	}
	return strings.Contains(strings.ToLower(fd.ContentType), refiMIMEMarker)
}

// DatasetHasQDA reports whether any file of the manifest is a QDA artifact.
func (c *Classifier) DatasetHasQDA(files []model.FileDescriptor) bool {
	for _, fd := range files {
		if c.IsQDAFile(fd) {
			return true
		}
	}
	return false
}

// IsQualitativeFormat reports whether the extension is in the broader
// qualitative-data set.
func (c *Classifier) IsQualitativeFormat(fd model.FileDescriptor) bool {
	_, ok := c.qualitative[fd.Ext()]
	return ok
}

// IsCandidate reports whether fd should be considered for download at all.
func (c *Classifier) IsCandidate(fd model.FileDescriptor) bool {
	return c.IsQDAFile(fd) || c.IsQualitativeFormat(fd)
}
