package indexer

import (
	"fmt"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/satelit"
)

const (
	DefaultLatestTemplate = "{{.Base}}/{{.Source}}/latest"
	DefaultIndexTemplate  = "{{.Base}}/{{.Source}}/index/{{.Hash}}"
)

// Index URLs are pure functions of the hash, and the plan only ever asks for the
// newest one or two.
const indexCacheSize = 16

// Templates are the text/template sources for the indexer's URLs. They're
// rendered with .Base, .Source and, for Index, .Hash.
type Templates struct {
	Latest string
	Index  string
}

// URLBuilder renders the indexer's URLs for a single source.
type URLBuilder struct {
	base   string
	source satelit.Source

	latest *template.Template
	index  *template.Template
	cache  *lru.Cache[string, string]
}

type urlData struct {
	Base   string
	Source string
	Hash   string
}

// NewURLBuilder parses the templates, falling back to the defaults for empty ones.
// A template that doesn't parse is a configuration error.
func NewURLBuilder(base string, src satelit.Source, tmpls Templates) (*URLBuilder, error) {
	if tmpls.Latest == "" {
		tmpls.Latest = DefaultLatestTemplate
	}
	if tmpls.Index == "" {
		tmpls.Index = DefaultIndexTemplate
	}

	latest, err := template.New("latest").Option("missingkey=error").Parse(tmpls.Latest)
	if err != nil {
		return nil, fmt.Errorf("error parsing latest url template: %w", err)
	}
	index, err := template.New("index").Option("missingkey=error").Parse(tmpls.Index)
	if err != nil {
		return nil, fmt.Errorf("error parsing index url template: %w", err)
	}
	cache, err := lru.New[string, string](indexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating url cache: %w", err)
	}

	return &URLBuilder{
		base:   strings.TrimRight(base, "/"),
		source: src,
		latest: latest,
		index:  index,
		cache:  cache,
	}, nil
}

func (b *URLBuilder) Source() satelit.Source {
	return b.source
}

// Latest is where the indexer describes the source's newest snapshot.
func (b *URLBuilder) Latest() (string, error) {
	return b.render(b.latest, "")
}

// Index is where the snapshot's content can be fetched.
func (b *URLBuilder) Index(f satelit.IndexFile) (string, error) {
	if u, ok := b.cache.Get(f.Hash); ok {
		return u, nil
	}

	u, err := b.render(b.index, f.Hash)
	if err != nil {
		return "", err
	}
	b.cache.Add(f.Hash, u)

	return u, nil
}

func (b *URLBuilder) render(t *template.Template, hash string) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, urlData{
		Base:   b.base,
		Source: b.source.String(),
		Hash:   hash,
	}); err != nil {
		return "", saterrs.E(saterrs.Op("indexer.render"), saterrs.Unexpected, fmt.Errorf("error rendering %s url: %w", t.Name(), err))
	}

	return sb.String(), nil
}
