// Package harvest turns search hits into persisted file records and drives
// whole harvest runs over the source registry.
package harvest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/classify"
	"github.com/sells-group/qda-harvester/internal/fetcher"
	"github.com/sells-group/qda-harvester/internal/files"
	"github.com/sells-group/qda-harvester/internal/license"
	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/source"
	"github.com/sells-group/qda-harvester/internal/store"
)

const mib = 1024 * 1024

// Options are the admission rules of a pipeline.
type Options struct {
	// SizeCap is the largest declared size, in bytes, of a non-QDA file that
	// is downloaded. Zero disables the cap.
	SizeCap int64
	// FolderNames maps source keys to download folder labels.
	FolderNames map[string]string
	// ExcludedTypes are kind-of-data labels that mark non-data datasets.
	ExcludedTypes []string
	// Keywords are the relevance terms required of datasets without a QDA
	// file.
	Keywords []string
}

// Pipeline admits the files of dataset hits one at a time.
type Pipeline struct {
	store      store.Store
	classifier *classify.Classifier
	layout     *files.Layout
	opts       Options
	excluded   map[string]struct{}
	keywords   []string
	now        func() time.Time
	log        *zap.Logger
}

// NewPipeline creates a Pipeline writing to st and downloading under layout.
func NewPipeline(st store.Store, c *classify.Classifier, layout *files.Layout, opts Options) *Pipeline {
	excluded := make(map[string]struct{}, len(opts.ExcludedTypes))
	for _, t := range opts.ExcludedTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			excluded[t] = struct{}{}
		}
	}
	keywords := make([]string, 0, len(opts.Keywords))
	for _, k := range opts.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Pipeline{
		store:      st,
		classifier: c,
		layout:     layout,
		opts:       opts,
		excluded:   excluded,
		keywords:   keywords,
		now:        time.Now,
		log:        zap.L().With(zap.String("component", "harvest.pipeline")),
	}
}

// Process runs every hit through the admission gates in order and returns
// the summed outcome. Failures of a single hit or file are logged and
// skipped; only store errors and cancellation abort the call.
func (p *Pipeline) Process(ctx context.Context, src source.Source, sourceName string, hits []model.DatasetHit) (model.Stats, error) {
	var total model.Stats
	for i, hit := range hits {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		log := p.log.With(
			zap.String("source", sourceName),
			zap.String("url", hit.SourceURL),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(hits))),
		)
		log.Info("processing dataset", zap.String("title", truncate(hit.Title, 70)))

		stats, err := p.processHit(ctx, src, sourceName, hit, log)
		total.Add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Pipeline) processHit(ctx context.Context, src source.Source, sourceName string, hit model.DatasetHit, log *zap.Logger) (model.Stats, error) {
	var stats model.Stats

	meta, err := src.FetchMetadata(ctx, hit.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		log.Warn("could not fetch metadata", zap.Error(err))
		return stats, nil
	}
	// Records are keyed by the hit, whatever URL the adapter echoes back.
	meta.SourceName = sourceName
	meta.SourceURL = hit.SourceURL

	if !license.IsOpen(meta.LicenseType) {
		log.Info("skipped: license not open", zap.String("license", truncate(meta.LicenseType, 120)))
		stats.Skipped++
		return stats, nil
	}

	if len(meta.Files) == 0 {
		log.Info("no files attached to dataset")
		return stats, nil
	}

	hasQDA := p.classifier.DatasetHasQDA(meta.Files)

	if !hasQDA && p.excludedKind(meta.KindOfData) {
		log.Info("skipped: non-data resource", zap.String("kind_of_data", model.JoinList(meta.KindOfData)))
		stats.Skipped++
		return stats, nil
	}

	if !hasQDA && !p.relevant(meta) {
		log.Info("skipped: no qualitative signal in description")
		stats.Skipped++
		return stats, nil
	}

	for _, fd := range meta.Files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s, err := p.admitFile(ctx, src, meta, fd, log.With(zap.String("file", fd.Name)))
		stats.Add(s)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// excludedKind reports whether any declared kind of data is excluded.
func (p *Pipeline) excludedKind(kinds []string) bool {
	for _, k := range kinds {
		if _, ok := p.excluded[strings.ToLower(strings.TrimSpace(k))]; ok {
			return true
		}
	}
	return false
}

// relevant reports whether description or keywords mention a relevance term.
func (p *Pipeline) relevant(meta *model.DatasetMetadata) bool {
	text := strings.ToLower(meta.Description)
	if len(meta.Keywords) > 0 {
		text += " " + strings.ToLower(strings.Join(meta.Keywords, " "))
	}
	for _, k := range p.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func (p *Pipeline) folderLabel(sourceName string) string {
	if label, ok := p.opts.FolderNames[sourceName]; ok && label != "" {
		return label
	}
	return sourceName
}

func (p *Pipeline) admitFile(ctx context.Context, src source.Source, meta *model.DatasetMetadata, fd model.FileDescriptor, log *zap.Logger) (model.Stats, error) {
	var stats model.Stats
	isQDA := p.classifier.IsQDAFile(fd)

	if !p.classifier.IsCandidate(fd) {
		rec := model.NewFile(meta, fd, isQDA)
		rec.Notes = model.NoteIrrelevantType
		if err := p.insertMetadataOnly(ctx, rec); err != nil {
			return stats, err
		}
		log.Debug("metadata only: not a qualitative format", zap.String("ext", fd.Ext()))
		return stats, nil
	}

	dir := p.layout.Dir(p.folderLabel(meta.SourceName), files.RecordID(meta.SourceURL, fd.ID), meta.Title)
	folder := filepath.Base(dir)

	existing, err := p.store.FindBy(ctx, store.Match{SourceName: meta.SourceName, DownloadURL: fd.DownloadURL})
	if err != nil {
		return stats, eris.Wrap(err, "harvest: find by url")
	}
	if existing != nil {
		log.Debug("already recorded")
		return stats, nil
	}

	if p.opts.SizeCap > 0 && fd.Size > p.opts.SizeCap && !isQDA {
		rec := model.NewFile(meta, fd, isQDA)
		rec.LocalDirectory = folder
		rec.Notes = fmt.Sprintf("oversized (%.0f MB)", float64(fd.Size)/mib)
		if err := p.insertMetadataOnly(ctx, rec); err != nil {
			return stats, err
		}
		log.Info("skipped: exceeds size cap", zap.Int64("size", fd.Size))
		stats.Skipped++
		return stats, nil
	}

	if fd.Restricted {
		if err := p.insertRestricted(ctx, meta, fd, isQDA, folder); err != nil {
			return stats, err
		}
		log.Info("restricted: metadata saved", zap.Bool("qda", isQDA))
		stats.Restricted++
		return stats, nil
	}

	stage, err := p.layout.Stage()
	if err != nil {
		return stats, eris.Wrap(err, "harvest: stage download")
	}
	defer os.RemoveAll(stage) //nolint:errcheck

	staged, err := src.PullFile(ctx, fd.DownloadURL, stage, fd.Name)
	if err != nil {
		if fetcher.IsStatus(err, http.StatusForbidden) {
			if err := p.insertRestricted(ctx, meta, fd, isQDA, folder); err != nil {
				return stats, err
			}
			log.Info("restricted at download: metadata saved", zap.Bool("qda", isQDA))
			stats.Restricted++
			return stats, nil
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		log.Warn("download error", zap.Error(err))
		return stats, nil
	}

	if info, err := os.Stat(staged); err == nil && info.Size() > 50*mib {
		log.Info("hashing large file", zap.Int64("size", info.Size()))
	}
	digest, err := files.SHA256(staged)
	if err != nil {
		log.Warn("hash failed", zap.Error(err))
		return stats, nil
	}

	dup, err := p.store.FindByHash(ctx, digest)
	if err != nil {
		return stats, eris.Wrap(err, "harvest: find by hash")
	}
	if dup != nil {
		log.Info("duplicate content", zap.Int64("existing_id", dup.ID), zap.String("existing_path", dup.LocalPath))
		return stats, nil
	}

	local, err := files.Place(staged, dir, digest[:8])
	if err != nil {
		log.Warn("could not place download", zap.Error(err))
		return stats, nil
	}

	rec := model.NewFile(meta, fd, isQDA)
	rec.FileHash = digest
	rec.LocalPath = p.layout.Rel(local)
	rec.LocalDirectory = folder
	if rec.ContentType == "" {
		if mt, err := mimetype.DetectFile(local); err == nil {
			rec.ContentType = strings.TrimSpace(strings.SplitN(mt.String(), ";", 2)[0])
		}
	}
	now := p.now().UTC()
	rec.DownloadedAt = &now
	rec.CreatedAt = now

	inserted, err := p.store.InsertIfAbsent(ctx, matchOf(rec), rec)
	if err != nil {
		return stats, eris.Wrap(err, "harvest: insert downloaded")
	}
	if !inserted {
		_ = os.Remove(local)
		log.Debug("already recorded")
		return stats, nil
	}
	log.Info("downloaded", zap.Bool("qda", isQDA), zap.Int64("size", fd.Size))
	stats.Downloaded++
	return stats, nil
}

func (p *Pipeline) insertRestricted(ctx context.Context, meta *model.DatasetMetadata, fd model.FileDescriptor, isQDA bool, folder string) error {
	rec := model.NewFile(meta, fd, isQDA)
	rec.Restricted = true
	rec.LocalDirectory = folder
	rec.Notes = model.NoteRestricted
	return p.insertMetadataOnly(ctx, rec)
}

// insertMetadataOnly stores rec unless its (source, url, name) is recorded.
func (p *Pipeline) insertMetadataOnly(ctx context.Context, rec *model.File) error {
	rec.CreatedAt = p.now().UTC()
	if _, err := p.store.InsertIfAbsent(ctx, matchOf(rec), rec); err != nil {
		return eris.Wrapf(err, "harvest: insert %s", rec.FileName)
	}
	return nil
}

func matchOf(rec *model.File) store.Match {
	return store.Match{SourceName: rec.SourceName, DownloadURL: rec.DownloadURL, FileName: rec.FileName}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
