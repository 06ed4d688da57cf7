package source

import (
	"context"
	"net/url"
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
	iaBaseURL  = "https://archive.org"
	iaPageSize = 50
	iaInterval = time.Second
)

var (
	iaIdentifier = regexp.MustCompile(`archive\.org/(?:details|metadata|download)/([^/?#]+)`)
	ccLicense    = regexp.MustCompile(`creativecommons\.org/(licenses|publicdomain)/([^/]+)/([^/]+)`)
)

// iaFormatMIME maps archive.org format labels to MIME types.
var iaFormatMIME = map[string]string{
	"Text PDF":      "application/pdf",
	"DjVuTXT":       "text/plain",
	"hOCR":          "text/html",
	"Word Document": "application/msword",
	"MPEG4":         "video/mp4",
	"VBR MP3":       "audio/mpeg",
	"Ogg Vorbis":    "audio/ogg",
	"WAVE":          "audio/wav",
	"JPEG":          "image/jpeg",
	"PNG":           "image/png",
}

// InternetArchive searches archive.org texts and audio.
type InternetArchive struct {
	puller
	// BaseURL serves search, metadata and downloads.
	BaseURL string
	log     *zap.Logger
}

// NewInternetArchive creates the Internet Archive adapter.
func NewInternetArchive(opts Options) *InternetArchive {
	return &InternetArchive{
		puller:  puller{client: opts.client("ia", iaInterval, nil)},
		BaseURL: iaBaseURL,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", "ia")),
	}
}

// Label implements Source.
func (a *InternetArchive) Label() string { return "ia" }

var iaSearchFields = []string{"identifier", "title", "description", "creator", "date", "subject", "language"}

type iaDoc struct {
	Identifier  string     `json:"identifier"`
	Title       flexString `json:"title"`
	Description flexString `json:"description"`
	Creator     flexString `json:"creator"`
	Date        flexString `json:"date"`
	Subject     flexList   `json:"subject"`
	Language    flexList   `json:"language"`
}

// Search queries advancedsearch.php restricted to texts and audio.
func (a *InternetArchive) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	var hits []model.DatasetHit
	start, more := 0, false
	for len(hits) < MaxHits {
		params := url.Values{
			"q":      {"(" + query + ") AND mediatype:(texts OR audio)"},
			"output": {"json"},
			"rows":   {strconv.Itoa(iaPageSize)},
			"start":  {strconv.Itoa(start)},
			"fl[]":   iaSearchFields,
		}
		var resp struct {
			Response struct {
				NumFound int     `json:"numFound"`
				Docs     []iaDoc `json:"docs"`
			} `json:"response"`
		}
		if err := a.client.GetJSON(ctx, a.BaseURL+"/advancedsearch.php?"+params.Encode(), &resp); err != nil {
			return nil, eris.Wrap(err, "ia: search")
		}

		docs := resp.Response.Docs
		if len(docs) == 0 {
			more = false
			break
		}
		for _, d := range docs {
			if d.Title == "" || d.Identifier == "" {
				continue
			}
			hits = append(hits, model.DatasetHit{
				SourceName:    "ia",
				SourceURL:     a.BaseURL + "/details/" + d.Identifier,
				Title:         string(d.Title),
				Description:   markup.Clean(string(d.Description)),
				Authors:       string(d.Creator),
				DatePublished: string(d.Date),
				Tags:          splitSubjects(d.Subject),
				Language:      d.Language,
				Placeholder:   true,
			})
		}

		start += len(docs)
		if more = start < resp.Response.NumFound; !more {
			break
		}
	}

	hits = capHits(a.log, query, hits, more)
	a.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

// splitSubjects splits ";"-separated subject strings.
func splitSubjects(subjects []string) []string {
	var out []string
	for _, s := range subjects {
		out = append(out, compact(strings.Split(s, ";"))...)
	}
	return out
}

// itemID extracts the item identifier from a details, metadata or download
// URL, or returns ref unchanged when it is a bare identifier.
func itemID(ref string) string {
	if m := iaIdentifier.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	ref = strings.TrimRight(strings.TrimSpace(ref), "/")
	return ref[strings.LastIndex(ref, "/")+1:]
}

type iaMetadata struct {
	Metadata struct {
		Title       flexString `json:"title"`
		Description flexString `json:"description"`
		Creator     flexList   `json:"creator"`
		Date        flexString `json:"date"`
		PublicDate  flexString `json:"publicdate"`
		LicenseURL  flexString `json:"licenseurl"`
		Rights      flexString `json:"rights"`
		RightsInfo  flexString `json:"rights-info"`
		Subject     flexList   `json:"subject"`
		Language    flexList   `json:"language"`
		Publisher   flexList   `json:"publisher"`
		Uploader    flexString `json:"uploader"`
	} `json:"metadata"`
	Files []struct {
		Name    string     `json:"name"`
		Source  string     `json:"source"`
		Format  string     `json:"format"`
		Size    flexString `json:"size"`
		MD5     string     `json:"md5"`
		Private flexString `json:"private"`
	} `json:"files"`
}

// FetchMetadata reads /metadata/{id}.
func (a *InternetArchive) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	id := itemID(sourceURL)
	if id == "" {
		return nil, eris.Errorf("ia: no identifier in %s", sourceURL)
	}
	var item iaMetadata
	if err := a.client.GetJSON(ctx, a.BaseURL+"/metadata/"+url.PathEscape(id), &item); err != nil {
		return nil, eris.Wrapf(err, "ia: fetch metadata %s", id)
	}
	md := item.Metadata

	date := string(md.Date)
	if date == "" {
		date = string(md.PublicDate)
	}
	meta := &model.DatasetMetadata{
		SourceName:    "ia",
		SourceURL:     sourceURL,
		Title:         string(md.Title),
		Description:   markup.Clean(string(md.Description)),
		Authors:       model.JoinList(md.Creator),
		DatePublished: date,
		Tags:          splitSubjects(md.Subject),
		Language:      md.Language,
		Producer:      md.Publisher,
		UploaderEmail: string(md.Uploader),
		LicenseURL:    string(md.LicenseURL),
	}
	meta.LicenseType = licenseNameFromURL(meta.LicenseURL)
	if meta.LicenseType == "" {
		meta.LicenseType = rightsLicense(string(md.Rights), string(md.RightsInfo), string(md.Description))
	}

	for _, f := range item.Files {
		if f.Source != "original" || strings.HasSuffix(f.Name, "_meta.xml") || strings.HasSuffix(f.Name, "_files.xml") {
			continue
		}
		size, _ := strconv.ParseInt(string(f.Size), 10, 64)
		checksum := ""
		if f.MD5 != "" {
			checksum = "MD5:" + f.MD5
		}
		meta.Files = append(meta.Files, model.FileDescriptor{
			ID:           f.Name,
			Name:         f.Name,
			Size:         size,
			ContentType:  iaFormatMIME[f.Format],
			FriendlyType: f.Format,
			DownloadURL:  a.BaseURL + "/download/" + url.PathEscape(id) + "/" + url.PathEscape(f.Name),
			Restricted:   strings.EqualFold(string(f.Private), "true"),
			APIChecksum:  checksum,
		})
	}
	return meta, nil
}

// licenseNameFromURL names a Creative Commons or public-domain URL. Other
// URLs are returned as they are.
func licenseNameFromURL(licenseURL string) string {
	if licenseURL == "" {
		return ""
	}
	if m := ccLicense.FindStringSubmatch(licenseURL); m != nil {
		kind, version := strings.ToUpper(m[2]), m[3]
		switch {
		case kind == "ZERO":
			return "CC0 " + version
		case m[1] == "publicdomain" || kind == "MARK":
			return "Public Domain Mark " + version
		default:
			return "CC " + kind + " " + version
		}
	}
	if strings.Contains(strings.ToLower(licenseURL), "publicdomain") {
		return "Public Domain"
	}
	return licenseURL
}

// rightsLicense reads a public-domain statement out of free rights text.
func rightsLicense(texts ...string) string {
	for _, t := range texts {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "public domain"), strings.Contains(lower, "no known copyright"):
			return "Public Domain"
		case strings.Contains(lower, "united states government"):
			return "Public Domain (US Government)"
		}
	}
	return ""
}
