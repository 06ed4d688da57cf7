package source

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/markup"
	"github.com/sells-group/qda-harvester/internal/model"
)

const (
	figshareBaseURL  = "https://api.figshare.com/v2"
	figsharePageSize = 50
	figshareInterval = 500 * time.Millisecond
)

// figshareSkipTypes are item types that never hold research data.
var figshareSkipTypes = map[string]bool{
	"figure":       true,
	"media":        true,
	"code":         true,
	"poster":       true,
	"presentation": true,
}

var figshareArticleID = regexp.MustCompile(`/articles/[^/]+/[^/]+/(\d+)`)

// Figshare searches public figshare articles.
type Figshare struct {
	puller
	BaseURL string
	log     *zap.Logger
}

// NewFigshare creates the figshare adapter.
func NewFigshare(opts Options) *Figshare {
	return &Figshare{
		puller:  puller{client: opts.client("figshare", figshareInterval, nil)},
		BaseURL: figshareBaseURL,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", "figshare")),
	}
}

// Label implements Source.
func (f *Figshare) Label() string { return "figshare" }

type figshareSearchItem struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	URLPublicHTML   string `json:"url_public_html"`
	PublishedDate   string `json:"published_date"`
	DefinedTypeName string `json:"defined_type_name"`
}

// Search posts to /articles/search page by page.
func (f *Figshare) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	var hits []model.DatasetHit
	more := false
	for page := 1; len(hits) < MaxHits; page++ {
		payload := map[string]any{
			"search_for": query,
			"page":       page,
			"page_size":  figsharePageSize,
		}
		var items []figshareSearchItem
		if err := f.client.PostJSON(ctx, f.BaseURL+"/articles/search", payload, &items); err != nil {
			return nil, eris.Wrap(err, "figshare: search")
		}
		if len(items) == 0 {
			more = false
			break
		}

		for _, it := range items {
			if figshareSkipTypes[strings.ToLower(it.DefinedTypeName)] {
				continue
			}
			hits = append(hits, model.DatasetHit{
				SourceName:    "figshare",
				SourceURL:     it.URLPublicHTML,
				Title:         markup.Clean(it.Title),
				DatePublished: it.PublishedDate,
				Placeholder:   true,
			})
		}

		if more = len(items) == figsharePageSize; !more {
			break
		}
	}

	hits = capHits(f.log, query, hits, more)
	f.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

type figshareArticle struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	PublishedDate    string `json:"published_date"`
	DefinedTypeName  string `json:"defined_type_name"`
	IsConfidential   bool   `json:"is_confidential"`
	IsMetadataRecord bool   `json:"is_metadata_record"`
	Authors          []struct {
		FullName string `json:"full_name"`
	} `json:"authors"`
	License struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"license"`
	Tags       []string `json:"tags"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
	References []string `json:"references"`
	Files      []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		DownloadURL string `json:"download_url"`
		Mimetype    string `json:"mimetype"`
		ComputedMD5 string `json:"computed_md5"`
		SuppliedMD5 string `json:"supplied_md5"`
		IsLinkOnly  bool   `json:"is_link_only"`
	} `json:"files"`
}

// articleID extracts the numeric article id from a public or API URL.
func articleID(sourceURL string) (string, error) {
	if m := figshareArticleID.FindStringSubmatch(sourceURL); m != nil {
		return m[1], nil
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", eris.Wrapf(err, "figshare: parse %s", sourceURL)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if _, err := strconv.ParseInt(segments[i], 10, 64); err == nil {
			return segments[i], nil
		}
	}
	return "", eris.Errorf("figshare: no article id in %s", sourceURL)
}

// FetchMetadata reads /articles/{id}.
func (f *Figshare) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	id, err := articleID(sourceURL)
	if err != nil {
		return nil, err
	}
	var art figshareArticle
	if err := f.client.GetJSON(ctx, f.BaseURL+"/articles/"+id, &art); err != nil {
		return nil, eris.Wrapf(err, "figshare: fetch article %s", id)
	}

	meta := &model.DatasetMetadata{
		SourceName: "figshare",
		SourceURL:  sourceURL,
		Title:      markup.Clean(art.Title),
	}
	if art.IsConfidential || art.IsMetadataRecord {
		return meta, nil
	}

	var authors []string
	for _, a := range art.Authors {
		authors = append(authors, a.FullName)
	}
	authors = compact(authors)

	meta.Description = markup.Clean(art.Description)
	meta.Authors = model.JoinList(authors)
	meta.LicenseType = art.License.Name
	meta.LicenseURL = art.License.URL
	meta.DatePublished = art.PublishedDate
	meta.Publication = compact(art.References)
	if art.DefinedTypeName != "" {
		meta.KindOfData = []string{art.DefinedTypeName}
	}
	if len(authors) > 0 {
		meta.UploaderName = authors[0]
	}
	for _, t := range art.Tags {
		if t = markup.Clean(t); t != "" {
			meta.Keywords = append(meta.Keywords, t)
		}
	}
	for _, c := range art.Categories {
		if c.Title != "" {
			meta.Tags = append(meta.Tags, c.Title)
		}
	}

	for _, fl := range art.Files {
		if fl.IsLinkOnly {
			continue
		}
		mimeType := fl.Mimetype
		if mimeType == "undefined" {
			mimeType = ""
		}
		checksum := fl.ComputedMD5
		if checksum == "" {
			checksum = fl.SuppliedMD5
		}
		if checksum != "" {
			checksum = "MD5:" + checksum
		}
		name := fl.Name
		if name == "" {
			name = path.Base(fl.DownloadURL)
		}
		meta.Files = append(meta.Files, model.FileDescriptor{
			ID:          strconv.FormatInt(fl.ID, 10),
			Name:        name,
			Size:        fl.Size,
			ContentType: mimeType,
			DownloadURL: fl.DownloadURL,
			APIChecksum: checksum,
		})
	}

	return meta, nil
}
