package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLOC(t *testing.T, handler http.HandlerFunc) *LOC {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	l := NewLOC(testOptions())
	l.BaseURL = srv.URL
	return l
}

func TestLOCSearch(t *testing.T) {
	l := newTestLOC(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "oral history", q.Get("q"))
		assert.Equal(t, "json", q.Get("fo"))
		assert.Equal(t, "150", q.Get("c"))
		assert.Equal(t, "digitized:true", q.Get("fa"))

		if q.Get("sp") == "1" {
			writeJSON(w, `{"results": [
				{"id": "http://www.loc.gov/item/afc1/", "url": "https://www.loc.gov/item/afc1/", "title": "Mill town interviews",
				 "description": ["<p>Recorded 1978</p>"], "contributor": ["smith, a."], "date": "1978", "subject": ["labor"], "language": ["english"]},
				{"id": "http://www.loc.gov/collections/x/", "url": "https://www.loc.gov/collections/x/", "title": "A collection"},
				{"url": "https://www.loc.gov/item/untitled/"}
			], "pagination": {"next": "https://www.loc.gov/search/?sp=2"}}`)
			return
		}
		writeJSON(w, `{"results": [
			{"id": "http://www.loc.gov/item/afc2/", "title": "Second"}
		], "pagination": {"next": null}}`)
	})

	hits, err := l.Search(context.Background(), "oral history", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	h := hits[0]
	assert.Equal(t, "loc", h.SourceName)
	assert.Equal(t, "https://www.loc.gov/item/afc1/", h.SourceURL)
	assert.Equal(t, "Mill town interviews", h.Title)
	assert.Equal(t, "Recorded 1978", h.Description)
	assert.Equal(t, "smith, a.", h.Authors)
	assert.Equal(t, []string{"labor"}, h.Tags)

	assert.Equal(t, "http://www.loc.gov/item/afc2/", hits[1].SourceURL)
}

func TestLOCSearch_Error(t *testing.T) {
	l := newTestLOC(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := l.Search(context.Background(), "q", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loc: search")
}

func TestLOCFetchMetadata(t *testing.T) {
	l := newTestLOC(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/afc1/", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("fo"))
		writeJSON(w, `{
			"item": {
				"title": "Mill town interviews",
				"description": ["Interviews with <b>mill</b> workers"],
				"contributor_names": ["Smith, A.", "Jones, B."],
				"subject_headings": ["Labor"],
				"date": "1978",
				"language": ["english"],
				"genre": ["oral histories"],
				"created_published": ["Washington, D.C."],
				"rights": ["", "Licensed under https://creativecommons.org/licenses/by/4.0/ terms."]
			},
			"resources": [
				{"pdf": "https://tile.loc.gov/storage/afc1/transcript.pdf", "audio": "https://tile.loc.gov/storage/afc1/tape.mp3"},
				{"download_restricted": true, "files": [[
					{"url": "https://tile.loc.gov/storage/afc1/notes.txt", "mimetype": "text/plain", "size": 120},
					{"download": "https://tile.loc.gov/storage/afc1/scan.tif", "mimetype": "image/tiff", "size": "9000"},
					{"mimetype": "text/html"}
				]]}
			]
		}`)
	})

	meta, err := l.FetchMetadata(context.Background(), "https://www.loc.gov/item/afc1")
	require.NoError(t, err)

	assert.Equal(t, "Mill town interviews", meta.Title)
	assert.Equal(t, "Interviews with mill workers", meta.Description)
	assert.Equal(t, "Smith, A.; Jones, B.", meta.Authors)
	assert.Equal(t, []string{"Labor"}, meta.Tags)
	assert.Equal(t, []string{"oral histories"}, meta.KindOfData)
	assert.Equal(t, []string{"Washington, D.C."}, meta.Producer)
	assert.Equal(t, "Licensed under https://creativecommons.org/licenses/by/4.0/ terms.", meta.LicenseType)
	assert.Equal(t, "https://creativecommons.org/licenses/by/4.0/", meta.LicenseURL)

	require.Len(t, meta.Files, 4)
	assert.Equal(t, "transcript.pdf", meta.Files[0].Name)
	assert.Equal(t, "application/pdf", meta.Files[0].ContentType)
	assert.False(t, meta.Files[0].Restricted)
	assert.Equal(t, "tape.mp3", meta.Files[1].Name)
	assert.Equal(t, "audio/mpeg", meta.Files[1].ContentType)

	notes := meta.Files[2]
	assert.Equal(t, "notes.txt", notes.Name)
	assert.Equal(t, int64(120), notes.Size)
	assert.True(t, notes.Restricted)
	assert.Equal(t, "https://tile.loc.gov/storage/afc1/scan.tif", meta.Files[3].DownloadURL)
	assert.Equal(t, int64(9000), meta.Files[3].Size)
}

func TestLOCFetchMetadata_NoKnownRestrictions(t *testing.T) {
	l := newTestLOC(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/item/open1/":
			writeJSON(w, `{"item": {"title": "Open"}, "resources": []}`)
		case "/item/adv1/":
			writeJSON(w, `{"item": {"title": "Advisory", "rights_advisory": ["Publication may be restricted."]}, "resources": []}`)
		default:
			writeJSON(w, `{"item": {"title": "Closed", "access_restricted": true}, "resources": [{"pdf": "https://tile.loc.gov/x.pdf"}]}`)
		}
	})

	meta, err := l.FetchMetadata(context.Background(), "open1")
	require.NoError(t, err)
	assert.Equal(t, "No known restrictions", meta.LicenseType)

	meta, err = l.FetchMetadata(context.Background(), "adv1")
	require.NoError(t, err)
	assert.Equal(t, "Publication may be restricted.", meta.LicenseType)

	meta, err = l.FetchMetadata(context.Background(), "closed1")
	require.NoError(t, err)
	assert.Empty(t, meta.LicenseType)
	require.Len(t, meta.Files, 1)
	assert.True(t, meta.Files[0].Restricted)
}

func TestLOCItemURL(t *testing.T) {
	l := NewLOC(testOptions())
	assert.Equal(t, "https://www.loc.gov/item/afc1/?fo=json", l.itemURL("afc1"))
	assert.Equal(t, "https://www.loc.gov/item/afc1/?fo=json", l.itemURL("https://www.loc.gov/item/afc1"))
	assert.Equal(t, "https://www.loc.gov/item/afc1/?fo=json", l.itemURL("https://www.loc.gov/item/afc1/?fo=json"))
}
