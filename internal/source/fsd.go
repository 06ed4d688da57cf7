package source

import (
	"context"
	"encoding/xml"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/fetcher"
	"github.com/sells-group/qda-harvester/internal/markup"
	"github.com/sells-group/qda-harvester/internal/model"
)

const (
	fsdBaseURL  = "https://services.fsd.tuni.fi/v0/oai"
	fsdURNBase  = "https://urn.fi/urn:nbn:fi:fsd:T-"
	fsdInterval = time.Second
	// fsdOpenAccess marks studies released under CC BY 4.0.
	fsdOpenAccess = "(A)"
	fsdOpenLicURL = "https://creativecommons.org/licenses/by/4.0/"
)

var fsdStudyID = regexp.MustCompile(`(?i)FSD\d+`)

// FSD harvests the Finnish Social Science Data Archive over OAI-PMH. The
// protocol has no search verb, so records are listed and matched locally.
type FSD struct {
	puller
	BaseURL string
	log     *zap.Logger
}

// NewFSD creates the FSD adapter.
func NewFSD(opts Options) *FSD {
	return &FSD{
		puller:  puller{client: opts.client("fsd", fsdInterval, nil)},
		BaseURL: fsdBaseURL,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", "fsd")),
	}
}

// Label implements Source.
func (f *FSD) Label() string { return "fsd" }

type langText struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

// preferLang returns the text in lang, else the first non-empty one.
func preferLang(texts []langText, lang string) string {
	for _, t := range texts {
		if t.Lang == lang && strings.TrimSpace(t.Text) != "" {
			return strings.TrimSpace(t.Text)
		}
	}
	for _, t := range texts {
		if s := strings.TrimSpace(t.Text); s != "" {
			return s
		}
	}
	return ""
}

type dcRecord struct {
	Titles       []langText `xml:"title"`
	Descriptions []langText `xml:"description"`
	Identifiers  []string   `xml:"identifier"`
	Creators     []string   `xml:"creator"`
	Subjects     []string   `xml:"subject"`
	Dates        []string   `xml:"date"`
	Languages    []string   `xml:"language"`
	Coverage     []string   `xml:"coverage"`
}

type ddiEvent struct {
	Date  string `xml:"date,attr"`
	Event string `xml:"event,attr"`
}

type ddiCodeBook struct {
	Study struct {
		Titles    []langText `xml:"citation>titlStmt>titl"`
		Authors   []string   `xml:"citation>rspStmt>AuthEnty"`
		Producers []string   `xml:"citation>prodStmt>producer"`
		DistDate  string     `xml:"citation>distStmt>distDate"`
		Abstracts []langText `xml:"stdyInfo>abstract"`
		Keywords  []string   `xml:"stdyInfo>subject>keyword"`
		Topics    []string   `xml:"stdyInfo>subject>topcClas"`
		Nations   []string   `xml:"stdyInfo>sumDscr>nation"`
		GeogCover []string   `xml:"stdyInfo>sumDscr>geogCover"`
		CollDates []ddiEvent `xml:"stdyInfo>sumDscr>collDate"`
		Periods   []ddiEvent `xml:"stdyInfo>sumDscr>timePrd"`
		DataKinds []string   `xml:"stdyInfo>sumDscr>dataKind"`
		Restrctn  string     `xml:"dataAccs>useStmt>restrctn"`
	} `xml:"stdyDscr"`
	Files []struct {
		ID   string `xml:"ID,attr"`
		Name string `xml:"fileTxt>fileName"`
	} `xml:"fileDscr"`
}

// oaiElement is a record, a resumption token or an error of an OAI-PMH
// response, told apart by XMLName.
type oaiElement struct {
	XMLName xml.Name
	Header  struct {
		Status     string   `xml:"status,attr"`
		Identifier string   `xml:"identifier"`
		SetSpecs   []string `xml:"setSpec"`
	} `xml:"header"`
	Metadata struct {
		DC       *dcRecord    `xml:"dc"`
		CodeBook *ddiCodeBook `xml:"codeBook"`
	} `xml:"metadata"`
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

// setSpecValues returns the values of the header's "prefix:value" sets.
func (e oaiElement) setSpecValues(prefix string) []string {
	var out []string
	for _, s := range e.Header.SetSpecs {
		if v, ok := strings.CutPrefix(strings.TrimSpace(s), prefix); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// oaiError is an <error> element of an OAI-PMH response.
type oaiError struct {
	Code    string
	Message string
}

func (e *oaiError) Error() string {
	return "fsd: oai error " + e.Code + ": " + e.Message
}

// request reads one OAI-PMH response, handing each record to handle. It
// returns the resumption token, if any.
func (f *FSD) request(ctx context.Context, params url.Values, handle func(oaiElement)) (string, error) {
	body, err := f.client.Open(ctx, f.BaseURL+"?"+params.Encode())
	if err != nil {
		return "", eris.Wrapf(err, "fsd: %s", params.Get("verb"))
	}
	defer body.Close() //nolint:errcheck

	items, err := fetcher.CollectXML[oaiElement](ctx, body, "record", "resumptionToken", "error")
	if err != nil {
		return "", eris.Wrapf(err, "fsd: parse %s", params.Get("verb"))
	}

	var token string
	var oaiErr *oaiError
	for _, it := range items {
		switch it.XMLName.Local {
		case "record":
			handle(it)
		case "resumptionToken":
			token = strings.TrimSpace(it.Text)
		case "error":
			oaiErr = &oaiError{Code: it.Code, Message: strings.TrimSpace(it.Text)}
		}
	}
	if oaiErr != nil {
		return "", oaiErr
	}
	return token, nil
}

// Search lists oai_dc records and keeps those whose title, description or
// subjects contain every query term.
func (f *FSD) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	params := url.Values{"verb": {"ListRecords"}, "metadataPrefix": {"oai_dc"}}

	var hits []model.DatasetHit
	more := false
	for len(hits) < MaxHits {
		token, err := f.request(ctx, params, func(rec oaiElement) {
			if len(hits) >= MaxHits || rec.Header.Status == "deleted" || rec.Metadata.DC == nil {
				return
			}
			meta := dcToMetadata(rec, "")
			if meta == nil {
				return
			}
			searchable := strings.ToLower(meta.Title + " " + meta.Description + " " + strings.Join(meta.Tags, " "))
			for _, t := range terms {
				if !strings.Contains(searchable, t) {
					return
				}
			}
			hits = append(hits, model.DatasetHit{
				SourceName:    "fsd",
				SourceURL:     meta.SourceURL,
				Title:         meta.Title,
				Description:   meta.Description,
				Authors:       meta.Authors,
				DatePublished: meta.DatePublished,
				Tags:          meta.Tags,
				Language:      meta.Language,
				Placeholder:   true,
			})
		})
		if err != nil {
			var oe *oaiError
			if errors.As(err, &oe) {
				f.log.Warn("oai error", zap.String("code", oe.Code), zap.String("message", oe.Message))
				more = false
				break
			}
			return nil, err
		}
		if more = token != ""; !more {
			break
		}
		params = url.Values{"verb": {"ListRecords"}, "resumptionToken": {token}}
	}

	hits = capHits(f.log, query, hits, more)
	f.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

// studyID extracts "FSDnnnn" from a study id, OAI identifier or URN.
func studyID(ref string) string {
	if m := fsdStudyID.FindString(ref); m != "" {
		return strings.ToUpper(m)
	}
	ref = strings.TrimRight(strings.TrimSpace(ref), "/")
	return ref[strings.LastIndex(ref, "/")+1:]
}

func oaiIdentifier(ref string) string {
	id := studyID(ref)
	if strings.HasPrefix(id, "oai:") {
		return id
	}
	return "oai:fsd.uta.fi:" + id
}

// FetchMetadata reads the DDI 2.5 record of a study, falling back to Dublin
// Core when the archive has none.
func (f *FSD) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	identifier := oaiIdentifier(sourceURL)
	if !strings.HasPrefix(sourceURL, "http") {
		sourceURL = fsdURNBase + studyID(sourceURL)
	}

	var record *oaiElement
	params := url.Values{"verb": {"GetRecord"}, "metadataPrefix": {"oai_ddi25"}, "identifier": {identifier}}
	_, err := f.request(ctx, params, func(rec oaiElement) { record = &rec })
	var oe *oaiError
	if err != nil && !errors.As(err, &oe) {
		return nil, err
	}

	if record == nil || record.Metadata.CodeBook == nil {
		return f.fetchDC(ctx, identifier, sourceURL)
	}
	return ddiToMetadata(*record, sourceURL), nil
}

func (f *FSD) fetchDC(ctx context.Context, identifier, sourceURL string) (*model.DatasetMetadata, error) {
	var record *oaiElement
	params := url.Values{"verb": {"GetRecord"}, "metadataPrefix": {"oai_dc"}, "identifier": {identifier}}
	if _, err := f.request(ctx, params, func(rec oaiElement) { record = &rec }); err != nil {
		return nil, err
	}

	empty := &model.DatasetMetadata{SourceName: "fsd", SourceURL: sourceURL}
	if record == nil || record.Metadata.DC == nil {
		return empty, nil
	}
	meta := dcToMetadata(*record, sourceURL)
	if meta == nil {
		return empty, nil
	}
	return meta, nil
}

// dcToMetadata maps an oai_dc record. It returns nil for untitled records.
// An empty sourceURL is derived from the record.
func dcToMetadata(rec oaiElement, sourceURL string) *model.DatasetMetadata {
	dc := rec.Metadata.DC
	title := preferLang(dc.Titles, "en")
	if title == "" {
		return nil
	}

	if sourceURL == "" {
		for _, id := range dc.Identifiers {
			if id = strings.TrimSpace(id); strings.HasPrefix(id, "https://urn.fi/") {
				sourceURL = id
				break
			}
		}
	}
	if sourceURL == "" {
		oaiID := strings.TrimSpace(rec.Header.Identifier)
		if oaiID != "" {
			sourceURL = fsdURNBase + oaiID[strings.LastIndex(oaiID, ":")+1:]
		}
	}

	meta := &model.DatasetMetadata{
		SourceName:         "fsd",
		SourceURL:          sourceURL,
		Title:              title,
		Description:        markup.Clean(preferLang(dc.Descriptions, "en")),
		Authors:            model.JoinList(compact(dc.Creators)),
		Tags:               compact(dc.Subjects),
		Language:           compact(dc.Languages),
		GeographicCoverage: compact(dc.Coverage),
		KindOfData:         rec.setSpecValues("data_kind:"),
	}
	if dates := compact(dc.Dates); len(dates) > 0 {
		meta.DatePublished = dates[0]
	}
	return meta
}

func ddiToMetadata(rec oaiElement, sourceURL string) *model.DatasetMetadata {
	cb := rec.Metadata.CodeBook
	st := cb.Study

	authors := compact(st.Authors)
	geo := compact(st.Nations)
	for _, g := range compact(st.GeogCover) {
		if !contains(geo, g) {
			geo = append(geo, g)
		}
	}

	meta := &model.DatasetMetadata{
		SourceName:         "fsd",
		SourceURL:          sourceURL,
		Title:              preferLang(st.Titles, "en"),
		Description:        markup.Clean(preferLang(st.Abstracts, "en")),
		Authors:            model.JoinList(authors),
		LicenseType:        strings.TrimSpace(st.Restrctn),
		DatePublished:      strings.TrimSpace(st.DistDate),
		Keywords:           compact(st.Keywords),
		Tags:               compact(st.Topics),
		KindOfData:         compact(st.DataKinds),
		Language:           rec.setSpecValues("language:"),
		GeographicCoverage: geo,
		Producer:           compact(st.Producers),
		DateOfCollection:   eventRange(st.CollDates),
		TimePeriodCovered:  eventRange(st.Periods),
	}
	if len(authors) > 0 {
		meta.UploaderName = authors[0]
	}
	if strings.Contains(meta.LicenseType, fsdOpenAccess) {
		meta.LicenseURL = fsdOpenLicURL
	}

	// The archive hands data out only to signed-in users, so every file is
	// recorded restricted. The URN plus file id keys the record.
	for _, fd := range cb.Files {
		name := strings.TrimSpace(fd.Name)
		if name == "" {
			continue
		}
		meta.Files = append(meta.Files, model.FileDescriptor{
			ID:          fd.ID,
			Name:        name,
			DownloadURL: sourceURL + "#" + fd.ID,
			Restricted:  true,
		})
	}
	return meta
}

func eventRange(events []ddiEvent) string {
	var start, end string
	for _, e := range events {
		switch {
		case e.Event == "start" && start == "":
			start = e.Date
		case e.Event == "end" && end == "":
			end = e.Date
		}
	}
	return rangeText(start, end)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
