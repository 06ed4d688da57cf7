package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/qda-harvester/internal/model"
)

func newTestClassifier() *Classifier {
	return New([]string{".qdpx", "NVP", ".atlproj"}, []string{".txt", ".pdf", ".docx"})
}

func TestIsQDAFile_Extension(t *testing.T) {
	c := newTestClassifier()

	for _, name := range []string{"project.qdpx", "PROJECT.QDPX", "study.nvp", "codes.atlproj"} {
		for _, ct := range []string{"", "application/zip", "text/plain"} {
			fd := model.FileDescriptor{Name: name, ContentType: ct}
			assert.True(t, c.IsQDAFile(fd), "%s (%s)", name, ct)
		}
	}
}

func TestIsQDAFile_Markers(t *testing.T) {
	c := newTestClassifier()

	assert.True(t, c.IsQDAFile(model.FileDescriptor{Name: "export.zip", FriendlyType: "REFI-QDA Project"}))
	assert.True(t, c.IsQDAFile(model.FileDescriptor{Name: "export.bin", ContentType: "application/x-RefiQDA"}))
	assert.False(t, c.IsQDAFile(model.FileDescriptor{Name: "export.zip", FriendlyType: "ZIP Archive"}))
	assert.False(t, c.IsQDAFile(model.FileDescriptor{Name: "notes.txt"}))
}

func TestDatasetHasQDA(t *testing.T) {
	c := newTestClassifier()

	assert.False(t, c.DatasetHasQDA(nil))
	assert.False(t, c.DatasetHasQDA([]model.FileDescriptor{{Name: "a.txt"}, {Name: "b.pdf"}}))
	assert.True(t, c.DatasetHasQDA([]model.FileDescriptor{{Name: "a.txt"}, {Name: "b.qdpx"}}))
}

func TestIsCandidate(t *testing.T) {
	c := newTestClassifier()

	assert.True(t, c.IsCandidate(model.FileDescriptor{Name: "transcript.TXT"}))
	assert.True(t, c.IsCandidate(model.FileDescriptor{Name: "study.qdpx"}))
	assert.False(t, c.IsCandidate(model.FileDescriptor{Name: "analysis.do"}))
	assert.False(t, c.IsCandidate(model.FileDescriptor{Name: "README"}))
}

func TestZeroClassifier(t *testing.T) {
	var c Classifier
	assert.False(t, c.IsQDAFile(model.FileDescriptor{Name: "x.qdpx"}))
	assert.True(t, c.IsQDAFile(model.FileDescriptor{Name: "x", FriendlyType: "refi-qda"}))
}
