package source

import (
	"context"
	"encoding/json"
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
	locBaseURL  = "https://www.loc.gov"
	locPageSize = 150
	// loc.gov allows 20 requests a minute and blocks the address for an
	// hour beyond that.
	locInterval = 3500 * time.Millisecond
)

var ccURL = regexp.MustCompile(`https?://creativecommons\.org/[^\s"'<>]+`)

// locShortcuts are the resource keys that point straight at a file.
var locShortcuts = []struct {
	key  string
	mime string
}{
	{"pdf", "application/pdf"},
	{"audio", "audio/mpeg"},
	{"video", "video/mp4"},
	{"fulltext", "application/xml"},
}

// LOC searches the digitized collections of the Library of Congress.
type LOC struct {
	puller
	BaseURL string
	log     *zap.Logger
}

// NewLOC creates the Library of Congress adapter.
func NewLOC(opts Options) *LOC {
	return &LOC{
		puller:  puller{client: opts.client("loc", locInterval, nil)},
		BaseURL: locBaseURL,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", "loc")),
	}
}

// Label implements Source.
func (l *LOC) Label() string { return "loc" }

type locSearchResponse struct {
	Results []struct {
		ID          string     `json:"id"`
		URL         string     `json:"url"`
		Title       flexString `json:"title"`
		Description flexList   `json:"description"`
		Contributor flexList   `json:"contributor"`
		Date        flexString `json:"date"`
		Subject     flexList   `json:"subject"`
		Language    flexList   `json:"language"`
	} `json:"results"`
	Pagination struct {
		Next *string `json:"next"`
	} `json:"pagination"`
}

// Search pages through /search/ limited to digitized items.
func (l *LOC) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	var hits []model.DatasetHit
	more := false
	for page := 1; len(hits) < MaxHits; page++ {
		params := url.Values{
			"q":  {query},
			"fo": {"json"},
			"c":  {strconv.Itoa(locPageSize)},
			"sp": {strconv.Itoa(page)},
			"fa": {"digitized:true"},
		}
		var resp locSearchResponse
		if err := l.client.GetJSON(ctx, l.BaseURL+"/search/?"+params.Encode(), &resp); err != nil {
			return nil, eris.Wrap(err, "loc: search")
		}
		if len(resp.Results) == 0 {
			more = false
			break
		}

		for _, r := range resp.Results {
			itemURL := r.URL
			if itemURL == "" {
				itemURL = r.ID
			}
			if r.Title == "" || !strings.Contains(itemURL, "/item/") {
				continue
			}
			desc := ""
			if len(r.Description) > 0 {
				desc = markup.Clean(r.Description[0])
			}
			hits = append(hits, model.DatasetHit{
				SourceName:    "loc",
				SourceURL:     itemURL,
				Title:         string(r.Title),
				Description:   desc,
				Authors:       model.JoinList(r.Contributor),
				DatePublished: string(r.Date),
				Tags:          r.Subject,
				Language:      r.Language,
				Placeholder:   true,
			})
		}

		if more = resp.Pagination.Next != nil && *resp.Pagination.Next != ""; !more {
			break
		}
	}

	hits = capHits(l.log, query, hits, more)
	l.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

// itemURL turns an item URL or a bare item id into the JSON endpoint.
func (l *LOC) itemURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "http") {
		ref = l.BaseURL + "/item/" + strings.Trim(ref, "/") + "/"
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("fo", "json")
	u.RawQuery = q.Encode()
	return u.String()
}

type locItem struct {
	Item struct {
		Title            flexString `json:"title"`
		Description      flexList   `json:"description"`
		ContributorNames flexList   `json:"contributor_names"`
		SubjectHeadings  flexList   `json:"subject_headings"`
		Date             flexString `json:"date"`
		Language         flexList   `json:"language"`
		AccessRestricted bool       `json:"access_restricted"`
		Rights           flexList   `json:"rights"`
		RightsAdvisory   flexList   `json:"rights_advisory"`
		Genre            flexList   `json:"genre"`
		CreatedPublished flexList   `json:"created_published"`
	} `json:"item"`
	Resources []map[string]json.RawMessage `json:"resources"`
}

type locFile struct {
	URL      string     `json:"url"`
	Download string     `json:"download"`
	Mimetype string     `json:"mimetype"`
	Size     flexString `json:"size"`
}

// FetchMetadata reads the item record with fo=json.
func (l *LOC) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	var data locItem
	if err := l.client.GetJSON(ctx, l.itemURL(sourceURL), &data); err != nil {
		return nil, eris.Wrapf(err, "loc: fetch item %s", sourceURL)
	}
	it := data.Item

	meta := &model.DatasetMetadata{
		SourceName:    "loc",
		SourceURL:     sourceURL,
		Title:         string(it.Title),
		Authors:       model.JoinList(it.ContributorNames),
		DatePublished: string(it.Date),
		Tags:          it.SubjectHeadings,
		KindOfData:    it.Genre,
		Language:      it.Language,
		Producer:      it.CreatedPublished,
	}
	if len(it.Description) > 0 {
		meta.Description = markup.Clean(it.Description[0])
	}

	for _, r := range it.Rights {
		if cleaned := markup.Clean(r); cleaned != "" {
			meta.LicenseType = cleaned
			meta.LicenseURL = ccURL.FindString(r)
			break
		}
	}
	if meta.LicenseType == "" && !it.AccessRestricted {
		if len(it.RightsAdvisory) > 0 {
			meta.LicenseType = markup.Clean(it.RightsAdvisory[0])
		}
		if meta.LicenseType == "" {
			meta.LicenseType = "No known restrictions"
		}
	}

	for _, res := range data.Resources {
		restricted := it.AccessRestricted || rawBool(res["download_restricted"])

		shortcut := false
		for _, sc := range locShortcuts {
			u := rawString(res[sc.key])
			if u == "" {
				continue
			}
			shortcut = true
			name := path.Base(strings.TrimRight(u, "/"))
			meta.Files = append(meta.Files, model.FileDescriptor{
				ID:          name,
				Name:        name,
				ContentType: sc.mime,
				DownloadURL: u,
				Restricted:  restricted,
			})
		}
		if shortcut {
			continue
		}

		var groups [][]json.RawMessage
		if raw, ok := res["files"]; ok {
			_ = json.Unmarshal(raw, &groups)
		}
		for _, group := range groups {
			for _, raw := range group {
				var f locFile
				if err := json.Unmarshal(raw, &f); err != nil {
					continue
				}
				u := f.URL
				if u == "" {
					u = f.Download
				}
				if u == "" {
					continue
				}
				size, _ := strconv.ParseInt(string(f.Size), 10, 64)
				name := path.Base(strings.TrimRight(u, "/"))
				meta.Files = append(meta.Files, model.FileDescriptor{
					ID:          name,
					Name:        name,
					Size:        size,
					ContentType: f.Mimetype,
					DownloadURL: u,
					Restricted:  restricted,
				})
			}
		}
	}

	return meta, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}
