package source

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/markup"
	"github.com/sells-group/qda-harvester/internal/model"
)

const dataversePageSize = 100

// Dataverse searches one Dataverse installation through its native API.
type Dataverse struct {
	puller
	key string
	// BaseURL is the installation root, without a trailing slash.
	BaseURL string
	log     *zap.Logger
}

// NewDataverse creates an adapter for one catalog entry.
func NewDataverse(in Installation, opts Options) *Dataverse {
	if in.BrowserUserAgent {
		opts.UserAgent = BrowserUserAgent
	}
	return &Dataverse{
		puller:  puller{client: opts.client(in.Key, 0, nil)},
		key:     in.Key,
		BaseURL: strings.TrimRight(in.URL, "/"),
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", in.Key)),
	}
}

// Label implements Source.
func (d *Dataverse) Label() string { return d.key }

type dvSearchResponse struct {
	Data struct {
		TotalCount int `json:"total_count"`
		Items      []struct {
			Name        string   `json:"name"`
			GlobalID    string   `json:"global_id"`
			Description string   `json:"description"`
			Authors     flexList `json:"authors"`
			PublishedAt string   `json:"published_at"`
			Subjects    flexList `json:"subjects"`
		} `json:"items"`
	} `json:"data"`
}

// Search pages through /api/search, excluding harvested records.
func (d *Dataverse) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	var hits []model.DatasetHit
	start, more := 0, false
	for len(hits) < MaxHits {
		params := url.Values{
			"q":        {query},
			"type":     {"dataset"},
			"per_page": {strconv.Itoa(dataversePageSize)},
			"start":    {strconv.Itoa(start)},
			"fq":       {"-isHarvested:true"},
		}
		var resp dvSearchResponse
		if err := d.client.GetJSON(ctx, d.BaseURL+"/api/search?"+params.Encode(), &resp); err != nil {
			return nil, eris.Wrapf(err, "dataverse: search %s", d.key)
		}

		items := resp.Data.Items
		if len(items) == 0 {
			more = false
			break
		}
		for _, it := range items {
			hits = append(hits, model.DatasetHit{
				SourceName:    d.key,
				SourceURL:     d.BaseURL + "/dataset.xhtml?persistentId=" + it.GlobalID,
				Title:         it.Name,
				Description:   markup.Clean(it.Description),
				Authors:       model.JoinList(it.Authors),
				DatePublished: it.PublishedAt,
				Tags:          it.Subjects,
				Placeholder:   true,
			})
		}

		start += len(items)
		if more = start < resp.Data.TotalCount; !more {
			break
		}
	}

	hits = capHits(d.log, query, hits, more)
	d.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

type dvField struct {
	TypeName string          `json:"typeName"`
	Value    json.RawMessage `json:"value"`
}

type dvFile struct {
	Restricted bool `json:"restricted"`
	DataFile   struct {
		ID           int64  `json:"id"`
		Filename     string `json:"filename"`
		FileSize     int64  `json:"filesize"`
		ContentType  string `json:"contentType"`
		FriendlyType string `json:"friendlyType"`
		MD5          string `json:"md5"`
		Checksum     *struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"checksum"`
	} `json:"dataFile"`
}

type dvDatasetResponse struct {
	Data struct {
		LatestVersion struct {
			ReleaseTime    string          `json:"releaseTime"`
			License        json.RawMessage `json:"license"`
			TermsOfAccess  string          `json:"termsOfAccess"`
			TermsOfUse     string          `json:"termsOfUse"`
			MetadataBlocks struct {
				Citation struct {
					Fields []dvField `json:"fields"`
				} `json:"citation"`
			} `json:"metadataBlocks"`
			Files []dvFile `json:"files"`
		} `json:"latestVersion"`
	} `json:"data"`
}

// datasetAPIURL maps a dataset page URL, a bare persistent id or a numeric
// id onto the datasets endpoint.
func (d *Dataverse) datasetAPIURL(sourceURL string) (string, error) {
	lower := strings.ToLower(sourceURL)
	if strings.HasPrefix(lower, "doi:") || strings.HasPrefix(lower, "hdl:") {
		return d.BaseURL + "/api/datasets/:persistentId/?persistentId=" + url.QueryEscape(sourceURL), nil
	}

	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", eris.Wrapf(err, "dataverse: parse %s", sourceURL)
	}
	if pid := u.Query().Get("persistentId"); pid != "" {
		return d.BaseURL + "/api/datasets/:persistentId/?persistentId=" + url.QueryEscape(pid), nil
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if _, err := strconv.ParseInt(last, 10, 64); err == nil {
		return d.BaseURL + "/api/datasets/" + last, nil
	}
	return "", eris.Errorf("dataverse: no dataset id in %s", sourceURL)
}

// FetchMetadata reads the citation block and file list of the latest version.
func (d *Dataverse) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	apiURL, err := d.datasetAPIURL(sourceURL)
	if err != nil {
		return nil, err
	}
	var resp dvDatasetResponse
	if err := d.client.GetJSON(ctx, apiURL, &resp); err != nil {
		return nil, eris.Wrapf(err, "dataverse: fetch metadata %s", sourceURL)
	}
	version := resp.Data.LatestVersion

	cit := make(citation, len(version.MetadataBlocks.Citation.Fields))
	for _, f := range version.MetadataBlocks.Citation.Fields {
		cit[f.TypeName] = f.Value
	}

	meta := &model.DatasetMetadata{
		SourceName:    d.key,
		SourceURL:     sourceURL,
		Title:         cit.text("title"),
		DatePublished: version.ReleaseTime,
		Tags:          cit.list("subject"),
		KindOfData:    cit.list("kindOfData"),
		Language:      cit.list("language"),
		Depositor:     cit.text("depositor"),
	}

	if descs := cit.compounds("dsDescription"); len(descs) > 0 {
		meta.Description = markup.Clean(subValue(descs[0], "dsDescriptionValue"))
	}

	var authors []string
	for _, a := range cit.compounds("author") {
		authors = append(authors, subValue(a, "authorName"))
	}
	meta.Authors = model.JoinList(compact(authors))

	meta.Keywords = cit.subValues("keyword", "keywordValue")
	meta.Software = cit.subValues("software", "softwareName")
	meta.Producer = cit.subValues("producer", "producerName")

	for _, g := range cit.compounds("geographicCoverage") {
		v := subValue(g, "country")
		if v == "" {
			v = subValue(g, "otherGeographicCoverage")
		}
		if v != "" {
			meta.GeographicCoverage = append(meta.GeographicCoverage, v)
		}
	}

	for _, p := range cit.compounds("publication") {
		v := markup.Clean(subValue(p, "publicationCitation"))
		if v == "" {
			v = subValue(p, "publicationURL")
		}
		if v != "" {
			meta.Publication = append(meta.Publication, v)
		}
	}

	if dc := cit.compounds("dateOfCollection"); len(dc) > 0 {
		meta.DateOfCollection = rangeText(subValue(dc[0], "dateOfCollectionStart"), subValue(dc[0], "dateOfCollectionEnd"))
	}
	if tp := cit.compounds("timePeriodCovered"); len(tp) > 0 {
		meta.TimePeriodCovered = rangeText(subValue(tp[0], "timePeriodCoveredStart"), subValue(tp[0], "timePeriodCoveredEnd"))
	}
	if contacts := cit.compounds("datasetContact"); len(contacts) > 0 {
		meta.UploaderName = subValue(contacts[0], "datasetContactName")
		meta.UploaderEmail = subValue(contacts[0], "datasetContactEmail")
	}

	meta.LicenseType, meta.LicenseURL = dataverseLicense(version.License)
	if meta.LicenseType == "" {
		meta.LicenseType = markup.Clean(version.TermsOfAccess)
	}
	if meta.LicenseType == "" {
		meta.LicenseType = markup.Clean(version.TermsOfUse)
	}

	for _, f := range version.Files {
		df := f.DataFile
		checksum := ""
		if df.Checksum != nil && df.Checksum.Value != "" {
			checksum = df.Checksum.Type + ":" + df.Checksum.Value
		} else if df.MD5 != "" {
			checksum = "MD5:" + df.MD5
		}
		id := strconv.FormatInt(df.ID, 10)
		meta.Files = append(meta.Files, model.FileDescriptor{
			ID:           id,
			Name:         df.Filename,
			Size:         df.FileSize,
			ContentType:  df.ContentType,
			FriendlyType: df.FriendlyType,
			DownloadURL:  d.BaseURL + "/api/access/datafile/" + id,
			Restricted:   f.Restricted,
			APIChecksum:  checksum,
		})
	}

	return meta, nil
}

// dataverseLicense reads the license object of Dataverse 5.10+, or the bare
// license string of older installations.
func dataverseLicense(raw json.RawMessage) (name, uri string) {
	if len(raw) == 0 {
		return "", ""
	}
	var obj struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name, obj.URI
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "NONE" {
		return s, ""
	}
	return "", ""
}

// citation indexes the fields of a citation block by type name.
type citation map[string]json.RawMessage

func (c citation) text(name string) string {
	var s flexString
	if raw, ok := c[name]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return string(s)
}

func (c citation) list(name string) []string {
	var l flexList
	if raw, ok := c[name]; ok {
		_ = json.Unmarshal(raw, &l)
	}
	return []string(l)
}

// compounds returns the values of a compound field, which is a single
// object or a list of them.
func (c citation) compounds(name string) []map[string]dvField {
	raw, ok := c[name]
	if !ok {
		return nil
	}
	var many []map[string]dvField
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	var one map[string]dvField
	if err := json.Unmarshal(raw, &one); err == nil {
		return []map[string]dvField{one}
	}
	return nil
}

func (c citation) subValues(name, key string) []string {
	var out []string
	for _, m := range c.compounds(name) {
		if v := subValue(m, key); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func subValue(m map[string]dvField, key string) string {
	f, ok := m[key]
	if !ok {
		return ""
	}
	var s flexString
	_ = json.Unmarshal(f.Value, &s)
	return strings.TrimSpace(string(s))
}
