package traverson

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
)

// Media types understood by the engine.
const (
	MediaTypeHAL  = "application/hal+json"
	MediaTypeJSON = "application/json"
)

// Adapter parses response bodies of one media type and resolves relation
// keys against them.
type Adapter interface {
	MediaType() string
	Parse(body []byte) (*hal.Resource, error)
	Resolve(doc *hal.Resource, key hal.Key, preferEmbedded bool, logger hclog.Logger) (*hal.Target, error)
}

var adapters = map[string]Adapter{
	MediaTypeHAL:  halAdapter{},
	MediaTypeJSON: jsonAdapter{},
}

// adapterFor returns the adapter for a Content-Type header value.
func adapterFor(contentType string) (Adapter, error) {
	if contentType == "" {
		return nil, fmt.Errorf("%w: response has no content type", ErrUnsupportedMediaType)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedMediaType, contentType, err)
	}
	a, ok := adapters[strings.ToLower(mt)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mt)
	}
	return a, nil
}

func parseObject(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return doc, nil
}

type halAdapter struct{}

func (halAdapter) MediaType() string { return MediaTypeHAL }

func (halAdapter) Parse(body []byte) (*hal.Resource, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	return hal.FromMap(doc), nil
}

func (halAdapter) Resolve(doc *hal.Resource, key hal.Key, preferEmbedded bool, logger hclog.Logger) (*hal.Target, error) {
	return hal.Resolver{PreferEmbedded: preferEmbedded, Logger: logger}.Resolve(doc, key)
}

// jsonAdapter follows plain JSON documents where a relation is a property
// holding a URL, or an array of URLs for indexed keys.
type jsonAdapter struct{}

func (jsonAdapter) MediaType() string { return MediaTypeJSON }

func (jsonAdapter) Parse(body []byte) (*hal.Resource, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	return hal.FromMap(doc), nil
}

func (jsonAdapter) Resolve(doc *hal.Resource, key hal.Key, _ bool, _ hclog.Logger) (*hal.Target, error) {
	v, ok := doc.Property(key.Rel)
	if !ok {
		return nil, fmt.Errorf("%w: property %s", hal.ErrRelationNotFound, key.Rel)
	}

	switch key.Mode {
	case hal.KeyPlain:
		if s, ok := v.(string); ok {
			return &hal.Target{URL: s}, nil
		}
	case hal.KeyIndexed:
		if arr, ok := v.([]any); ok {
			if key.Index >= len(arr) {
				return nil, fmt.Errorf("%w: %s has %d elements, wanted index %d",
					hal.ErrIndexOutOfRange, key.Rel, len(arr), key.Index)
			}
			if s, ok := arr[key.Index].(string); ok {
				return &hal.Target{URL: s}, nil
			}
		}
	default:
		return nil, fmt.Errorf("key %s is not supported for %s documents", key, MediaTypeJSON)
	}

	return nil, fmt.Errorf("property %s does not hold a URL", key)
}
