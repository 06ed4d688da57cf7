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
	osfBaseURL  = "https://api.osf.io/v2"
	osfWebURL   = "https://osf.io"
	osfPageSize = 50
	osfInterval = time.Second
)

var (
	osfAPINode = regexp.MustCompile(`/v2/nodes/([^/?]+)`)
	osfWebNode = regexp.MustCompile(`osf\.io/([a-z0-9]{3,10})`)
)

// OSF searches public Open Science Framework projects.
type OSF struct {
	puller
	BaseURL string
	log     *zap.Logger
}

// NewOSF creates the OSF adapter.
func NewOSF(opts Options) *OSF {
	return &OSF{
		puller:  puller{client: opts.client("osf", osfInterval, nil)},
		BaseURL: osfBaseURL,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", "osf")),
	}
}

// Label implements Source.
func (o *OSF) Label() string { return "osf" }

type osfLinks struct {
	Next string `json:"next"`
}

type osfNodeAttributes struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	DateCreated  string          `json:"date_created"`
	Tags         []string        `json:"tags"`
	Public       *bool           `json:"public"`
	Registration bool            `json:"registration"`
	Preprint     bool            `json:"preprint"`
	Fork         bool            `json:"fork"`
	Collection   bool            `json:"collection"`
	Category     string          `json:"category"`
	Subjects     json.RawMessage `json:"subjects"`
}

type osfNode struct {
	ID            string            `json:"id"`
	Attributes    osfNodeAttributes `json:"attributes"`
	Relationships struct {
		License struct {
			Links struct {
				Related json.RawMessage `json:"related"`
			} `json:"links"`
		} `json:"license"`
	} `json:"relationships"`
}

// skip reports whether the node is not a public project or component.
func (n osfNode) skip() bool {
	a := n.Attributes
	if a.Public != nil && !*a.Public {
		return true
	}
	return a.Registration || a.Preprint || a.Fork || a.Collection || strings.EqualFold(a.Category, "collection")
}

// Search filters nodes by title and follows links.next.
func (o *OSF) Search(ctx context.Context, query, _ string) ([]model.DatasetHit, error) {
	params := url.Values{
		"filter[title]": {query},
		"page[size]":    {strconv.Itoa(osfPageSize)},
	}
	next := o.BaseURL + "/nodes/?" + params.Encode()

	var hits []model.DatasetHit
	for next != "" && len(hits) < MaxHits {
		var page struct {
			Data  []osfNode `json:"data"`
			Links osfLinks  `json:"links"`
		}
		if err := o.client.GetJSON(ctx, next, &page); err != nil {
			return nil, eris.Wrap(err, "osf: search")
		}
		if len(page.Data) == 0 {
			next = ""
			break
		}
		for _, n := range page.Data {
			if n.skip() {
				continue
			}
			hits = append(hits, model.DatasetHit{
				SourceName:    "osf",
				SourceURL:     osfWebURL + "/" + n.ID + "/",
				Title:         n.Attributes.Title,
				Description:   markup.Clean(n.Attributes.Description),
				DatePublished: n.Attributes.DateCreated,
				Tags:          n.Attributes.Tags,
				Placeholder:   true,
			})
		}
		next = page.Links.Next
	}

	hits = capHits(o.log, query, hits, next != "")
	o.log.Info("search complete", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

// nodeID extracts the node guid from an API or web URL.
func nodeID(sourceURL string) string {
	if m := osfAPINode.FindStringSubmatch(sourceURL); m != nil {
		return m[1]
	}
	if m := osfWebNode.FindStringSubmatch(sourceURL); m != nil {
		return m[1]
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// FetchMetadata reads the node, its contributors, its license and its
// osfstorage files.
func (o *OSF) FetchMetadata(ctx context.Context, sourceURL string) (*model.DatasetMetadata, error) {
	id := nodeID(sourceURL)
	if id == "" {
		return nil, eris.Errorf("osf: no node id in %s", sourceURL)
	}

	var node struct {
		Data osfNode `json:"data"`
	}
	if err := o.client.GetJSON(ctx, o.BaseURL+"/nodes/"+id+"/", &node); err != nil {
		return nil, eris.Wrapf(err, "osf: fetch node %s", id)
	}
	attrs := node.Data.Attributes

	meta := &model.DatasetMetadata{
		SourceName:    "osf",
		SourceURL:     sourceURL,
		Title:         attrs.Title,
		Description:   markup.Clean(attrs.Description),
		DatePublished: attrs.DateCreated,
		Keywords:      attrs.Tags,
		Tags:          osfSubjects(attrs.Subjects),
	}

	authors, err := o.contributors(ctx, id)
	if err != nil {
		return nil, err
	}
	meta.Authors = model.JoinList(authors)
	if len(authors) > 0 {
		meta.UploaderName = authors[0]
	}

	meta.LicenseType, meta.LicenseURL = o.license(ctx, node.Data.Relationships.License.Links.Related)

	files, err := o.files(ctx, id)
	if err != nil {
		return nil, err
	}
	meta.Files = files
	return meta, nil
}

func (o *OSF) contributors(ctx context.Context, id string) ([]string, error) {
	var names []string
	next := o.BaseURL + "/nodes/" + id + "/contributors/?embed=users"
	for next != "" {
		var page struct {
			Data []struct {
				Embeds struct {
					Users struct {
						Data struct {
							Attributes struct {
								FullName string `json:"full_name"`
							} `json:"attributes"`
						} `json:"data"`
					} `json:"users"`
				} `json:"embeds"`
			} `json:"data"`
			Links osfLinks `json:"links"`
		}
		if err := o.client.GetJSON(ctx, next, &page); err != nil {
			return nil, eris.Wrapf(err, "osf: fetch contributors of %s", id)
		}
		for _, c := range page.Data {
			if name := strings.TrimSpace(c.Embeds.Users.Data.Attributes.FullName); name != "" {
				names = append(names, name)
			}
		}
		next = page.Links.Next
	}
	return names, nil
}

// license follows the node's license relationship. Failures leave the
// license empty.
func (o *OSF) license(ctx context.Context, related json.RawMessage) (name, licenseURL string) {
	href := ""
	var s string
	if err := json.Unmarshal(related, &s); err == nil {
		href = s
	} else {
		var obj struct {
			Href string `json:"href"`
		}
		if err := json.Unmarshal(related, &obj); err == nil {
			href = obj.Href
		}
	}
	if href == "" {
		return "", ""
	}

	var resp struct {
		Data struct {
			Attributes struct {
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := o.client.GetJSON(ctx, href, &resp); err != nil {
		o.log.Debug("license lookup failed", zap.String("url", href), zap.Error(err))
		return "", ""
	}
	return resp.Data.Attributes.Name, resp.Data.Attributes.URL
}

func (o *OSF) files(ctx context.Context, id string) ([]model.FileDescriptor, error) {
	var out []model.FileDescriptor
	next := o.BaseURL + "/nodes/" + id + "/files/osfstorage/"
	for next != "" {
		var page struct {
			Data []struct {
				ID         string `json:"id"`
				Attributes struct {
					Kind        string `json:"kind"`
					Name        string `json:"name"`
					Size        int64  `json:"size"`
					GUID        string `json:"guid"`
					ContentType string `json:"content_type"`
					Extra       struct {
						Hashes struct {
							SHA256 string `json:"sha256"`
						} `json:"hashes"`
					} `json:"extra"`
				} `json:"attributes"`
				Links struct {
					Download string `json:"download"`
				} `json:"links"`
			} `json:"data"`
			Links osfLinks `json:"links"`
		}
		if err := o.client.GetJSON(ctx, next, &page); err != nil {
			return nil, eris.Wrapf(err, "osf: list files of %s", id)
		}
		for _, f := range page.Data {
			a := f.Attributes
			if a.Kind == "folder" {
				continue
			}
			download := f.Links.Download
			if download == "" {
				guid := a.GUID
				if guid == "" {
					guid = f.ID
				}
				download = osfWebURL + "/download/" + guid + "/"
			}
			checksum := ""
			if a.Extra.Hashes.SHA256 != "" {
				checksum = "SHA-256:" + a.Extra.Hashes.SHA256
			}
			out = append(out, model.FileDescriptor{
				ID:          f.ID,
				Name:        a.Name,
				Size:        a.Size,
				ContentType: a.ContentType,
				DownloadURL: download,
				APIChecksum: checksum,
			})
		}
		next = page.Links.Next
	}
	return out, nil
}

// osfSubjects flattens the subject hierarchy, a list of lists of
// {"text": ...} or a flat list of them.
func osfSubjects(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	type subject struct {
		Text string `json:"text"`
	}
	var nested [][]subject
	if err := json.Unmarshal(raw, &nested); err != nil {
		var flat []subject
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil
		}
		nested = [][]subject{flat}
	}
	var out []string
	seen := make(map[string]bool)
	for _, chain := range nested {
		for _, s := range chain {
			if s.Text != "" && !seen[s.Text] {
				seen[s.Text] = true
				out = append(out, s.Text)
			}
		}
	}
	return out
}
