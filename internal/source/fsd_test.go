package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fsdListPage1 = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record>
      <header>
        <identifier>oai:fsd.uta.fi:FSD3001</identifier>
        <setSpec>data_kind:qualitative</setSpec>
      </header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title xml:lang="fi">Hoitajien haastattelut</dc:title>
          <dc:title xml:lang="en">Interviews with Nurses 2015</dc:title>
          <dc:description xml:lang="en">&lt;p&gt;Thematic interviews&lt;/p&gt;</dc:description>
          <dc:identifier>https://urn.fi/urn:nbn:fi:fsd:T-FSD3001</dc:identifier>
          <dc:creator>Virtanen, Liisa</dc:creator>
          <dc:subject>health care</dc:subject>
          <dc:date>2016</dc:date>
          <dc:language>fi</dc:language>
          <dc:coverage>Finland</dc:coverage>
        </oai_dc:dc>
      </metadata>
    </record>
    <record>
      <header status="deleted"><identifier>oai:fsd.uta.fi:FSD3002</identifier></header>
    </record>
    <record>
      <header><identifier>oai:fsd.uta.fi:FSD3003</identifier></header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title xml:lang="en">Election survey 2015</dc:title>
        </oai_dc:dc>
      </metadata>
    </record>
    <resumptionToken>tok-2</resumptionToken>
  </ListRecords>
</OAI-PMH>`

const fsdListPage2 = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record>
      <header><identifier>oai:fsd.uta.fi:FSD3004</identifier></header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title xml:lang="en">Nurses and care work</dc:title>
          <dc:subject>interviews</dc:subject>
        </oai_dc:dc>
      </metadata>
    </record>
    <resumptionToken/>
  </ListRecords>
</OAI-PMH>`

const fsdDDIRecord = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <GetRecord>
    <record>
      <header>
        <identifier>oai:fsd.uta.fi:FSD3001</identifier>
        <setSpec>language:en</setSpec>
        <setSpec>language:fi</setSpec>
      </header>
      <metadata>
        <codeBook xmlns="ddi:codebook:2_5">
          <stdyDscr>
            <citation>
              <titlStmt>
                <titl xml:lang="fi">Hoitajien haastattelut</titl>
                <titl xml:lang="en">Interviews with Nurses 2015</titl>
              </titlStmt>
              <rspStmt><AuthEnty>Virtanen, Liisa</AuthEnty><AuthEnty>Korhonen, Matti</AuthEnty></rspStmt>
              <prodStmt><producer>University of Tampere</producer></prodStmt>
              <distStmt><distDate>2016-05-01</distDate></distStmt>
            </citation>
            <stdyInfo>
              <subject>
                <keyword>nurses</keyword>
                <keyword>work</keyword>
                <topcClas>Health</topcClas>
              </subject>
              <abstract xml:lang="en">The study &lt;b&gt;explores&lt;/b&gt; care work.</abstract>
              <sumDscr>
                <timePrd event="start" date="2014"/>
                <timePrd event="end" date="2015"/>
                <collDate event="start" date="2015-01"/>
                <collDate event="end" date="2015-03"/>
                <nation>Finland</nation>
                <geogCover>Finland</geogCover>
                <geogCover>Pirkanmaa</geogCover>
                <dataKind>Qualitative</dataKind>
              </sumDscr>
            </stdyInfo>
            <dataAccs>
              <useStmt><restrctn>The dataset is (A) openly available for all users without registration.</restrctn></useStmt>
            </dataAccs>
          </stdyDscr>
          <fileDscr ID="F1"><fileTxt><fileName>daF3001_eng.txt</fileName></fileTxt></fileDscr>
          <fileDscr ID="F2"><fileTxt><fileName></fileName></fileTxt></fileDscr>
        </codeBook>
      </metadata>
    </record>
  </GetRecord>
</OAI-PMH>`

const fsdCannotDisseminate = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="cannotDisseminateFormat">oai_ddi25 not available</error>
</OAI-PMH>`

const fsdDCRecord = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <GetRecord>
    <record>
      <header><identifier>oai:fsd.uta.fi:FSD9</identifier></header>
      <metadata>
        <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
          <dc:title>Old study</dc:title>
        </oai_dc:dc>
      </metadata>
    </record>
  </GetRecord>
</OAI-PMH>`

func newTestFSD(t *testing.T, handler http.HandlerFunc) *FSD {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewFSD(testOptions())
	f.BaseURL = srv.URL + "/v0/oai"
	return f
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(body))
}

func TestFSDSearch(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ListRecords", q.Get("verb"))
		if q.Get("resumptionToken") == "tok-2" {
			assert.Empty(t, q.Get("metadataPrefix"))
			writeXML(w, fsdListPage2)
			return
		}
		assert.Equal(t, "oai_dc", q.Get("metadataPrefix"))
		writeXML(w, fsdListPage1)
	})

	hits, err := f.Search(context.Background(), "Nurses", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	h := hits[0]
	assert.Equal(t, "fsd", h.SourceName)
	assert.Equal(t, "https://urn.fi/urn:nbn:fi:fsd:T-FSD3001", h.SourceURL)
	assert.Equal(t, "Interviews with Nurses 2015", h.Title)
	assert.Equal(t, "Thematic interviews", h.Description)
	assert.Equal(t, "Virtanen, Liisa", h.Authors)
	assert.Equal(t, "2016", h.DatePublished)
	assert.Equal(t, []string{"health care"}, h.Tags)

	assert.Equal(t, "https://urn.fi/urn:nbn:fi:fsd:T-FSD3004", hits[1].SourceURL)
}

func TestFSDSearch_AllTermsMustMatch(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("resumptionToken") != "" {
			writeXML(w, fsdListPage2)
			return
		}
		writeXML(w, fsdListPage1)
	})

	hits, err := f.Search(context.Background(), "nurses interviews", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	hits, err = f.Search(context.Background(), "nurses election", "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFSDSearch_OAIErrorEndsSearch(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		writeXML(w, `<OAI-PMH><error code="noRecordsMatch">none</error></OAI-PMH>`)
	})
	hits, err := f.Search(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFSDSearch_MalformedXML(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		writeXML(w, `<OAI-PMH><ListRecords><record><header>`)
	})
	_, err := f.Search(context.Background(), "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fsd: parse ListRecords")
}

func TestFSDFetchMetadata_DDI(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "GetRecord", q.Get("verb"))
		assert.Equal(t, "oai_ddi25", q.Get("metadataPrefix"))
		assert.Equal(t, "oai:fsd.uta.fi:FSD3001", q.Get("identifier"))
		writeXML(w, fsdDDIRecord)
	})

	src := "https://urn.fi/urn:nbn:fi:fsd:T-FSD3001"
	meta, err := f.FetchMetadata(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, src, meta.SourceURL)
	assert.Equal(t, "Interviews with Nurses 2015", meta.Title)
	assert.Equal(t, "The study explores care work.", meta.Description)
	assert.Equal(t, "Virtanen, Liisa; Korhonen, Matti", meta.Authors)
	assert.Equal(t, "Virtanen, Liisa", meta.UploaderName)
	assert.Equal(t, "2016-05-01", meta.DatePublished)
	assert.Equal(t, []string{"nurses", "work"}, meta.Keywords)
	assert.Equal(t, []string{"Health"}, meta.Tags)
	assert.Equal(t, []string{"Qualitative"}, meta.KindOfData)
	assert.Equal(t, []string{"en", "fi"}, meta.Language)
	assert.Equal(t, []string{"Finland", "Pirkanmaa"}, meta.GeographicCoverage)
	assert.Equal(t, []string{"University of Tampere"}, meta.Producer)
	assert.Equal(t, "2015-01 – 2015-03", meta.DateOfCollection)
	assert.Equal(t, "2014 – 2015", meta.TimePeriodCovered)
	assert.Contains(t, meta.LicenseType, "(A)")
	assert.Equal(t, fsdOpenLicURL, meta.LicenseURL)

	require.Len(t, meta.Files, 1)
	fd := meta.Files[0]
	assert.Equal(t, "F1", fd.ID)
	assert.Equal(t, "daF3001_eng.txt", fd.Name)
	assert.Equal(t, src+"#F1", fd.DownloadURL)
	assert.True(t, fd.Restricted)
}

func TestFSDFetchMetadata_DCFallback(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("metadataPrefix") == "oai_ddi25" {
			writeXML(w, fsdCannotDisseminate)
			return
		}
		writeXML(w, fsdDCRecord)
	})

	meta, err := f.FetchMetadata(context.Background(), "FSD9")
	require.NoError(t, err)
	assert.Equal(t, "https://urn.fi/urn:nbn:fi:fsd:T-FSD9", meta.SourceURL)
	assert.Equal(t, "Old study", meta.Title)
	assert.Empty(t, meta.Files)
}

func TestFSDFetchMetadata_HTTPError(t *testing.T) {
	f := newTestFSD(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := f.FetchMetadata(context.Background(), "FSD1")
	assert.Error(t, err)
}

func TestStudyID(t *testing.T) {
	assert.Equal(t, "FSD4012", studyID("FSD4012"))
	assert.Equal(t, "FSD4012", studyID("oai:fsd.uta.fi:fsd4012"))
	assert.Equal(t, "FSD4012", studyID("https://urn.fi/urn:nbn:fi:fsd:T-FSD4012"))
	assert.Equal(t, "FSD4012", studyID("https://services.fsd.tuni.fi/catalogue/FSD4012/"))
	assert.Equal(t, "oai:fsd.uta.fi:FSD7", oaiIdentifier("FSD7"))
}

func TestPreferLang(t *testing.T) {
	texts := []langText{{Lang: "fi", Text: "Suomi"}, {Lang: "en", Text: " English "}}
	assert.Equal(t, "English", preferLang(texts, "en"))
	assert.Equal(t, "Suomi", preferLang(texts, "sv"))
	assert.Equal(t, "", preferLang(nil, "en"))
}
