package source

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed dataverse_installations.yaml
var installationsYAML []byte

// Installation is one Dataverse host of the embedded catalog.
type Installation struct {
	Key              string `yaml:"key"`
	Name             string `yaml:"name"`
	URL              string `yaml:"url"`
	BrowserUserAgent bool   `yaml:"browser_user_agent"`
}

// Installations parses the embedded Dataverse catalog.
func Installations() ([]Installation, error) {
	var doc struct {
		Installations []Installation `yaml:"installations"`
	}
	if err := yaml.Unmarshal(installationsYAML, &doc); err != nil {
		return nil, eris.Wrap(err, "source: parse dataverse catalog")
	}
	return doc.Installations, nil
}

// Entry describes a registered source for listings.
type Entry struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Registry is an immutable, ordered mapping of keys to sources.
type Registry struct {
	entries []Entry
	sources map[string]Source
}

// NewRegistry builds every known source: the Dataverse catalog first, then
// the bespoke adapters.
func NewRegistry(opts Options) (*Registry, error) {
	installs, err := Installations()
	if err != nil {
		return nil, err
	}

	r := &Registry{sources: make(map[string]Source)}
	for _, in := range installs {
		r.add(Entry{Key: in.Key, Kind: "dataverse", Name: in.Name, URL: in.URL}, NewDataverse(in, opts))
	}
	r.add(Entry{Key: "figshare", Kind: "figshare", Name: "Figshare", URL: figshareBaseURL}, NewFigshare(opts))
	r.add(Entry{Key: "osf", Kind: "osf", Name: "Open Science Framework", URL: osfBaseURL}, NewOSF(opts))
	r.add(Entry{Key: "fsd", Kind: "oai-pmh", Name: "Finnish Social Science Data Archive", URL: fsdBaseURL}, NewFSD(opts))
	r.add(Entry{Key: "ia", Kind: "internet-archive", Name: "Internet Archive", URL: iaBaseURL}, NewInternetArchive(opts))
	r.add(Entry{Key: "loc", Kind: "loc", Name: "Library of Congress", URL: locBaseURL}, NewLOC(opts))
	return r, nil
}

// NewRegistryOf registers the given sources under their labels, in order.
func NewRegistryOf(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.add(Entry{Key: s.Label(), Kind: "custom", Name: s.Label()}, s)
	}
	return r
}

func (r *Registry) add(e Entry, s Source) {
	if _, dup := r.sources[e.Key]; dup {
		return
	}
	r.entries = append(r.entries, e)
	r.sources[e.Key] = s
}

// Get returns the source registered under key.
func (r *Registry) Get(key string) (Source, error) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q (valid: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return s, nil
}

// Select returns the sources for keys in the given order. An empty keys
// slice selects every source.
func (r *Registry) Select(keys []string) ([]Source, error) {
	if len(keys) == 0 {
		return r.All(), nil
	}
	out := make([]Source, 0, len(keys))
	for _, k := range keys {
		s, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// All returns every source in registry order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, r.sources[e.Key])
	}
	return out
}

// Keys returns the registered keys in order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Entries returns a copy of the registry listing.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.entries)
}
