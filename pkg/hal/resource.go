package hal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reserved HAL property names.
const (
	linksKey    = "_links"
	embeddedKey = "_embedded"
	curiesRel   = "curies"
	selfRel     = "self"
)

// Link is a HAL link object.
type Link struct {
	Href        string `json:"href" mapstructure:"href"`
	Templated   bool   `json:"templated,omitempty" mapstructure:"templated"`
	Type        string `json:"type,omitempty" mapstructure:"type"`
	Name        string `json:"name,omitempty" mapstructure:"name"`
	Title       string `json:"title,omitempty" mapstructure:"title"`
	Profile     string `json:"profile,omitempty" mapstructure:"profile"`
	Hreflang    string `json:"hreflang,omitempty" mapstructure:"hreflang"`
	Deprecation string `json:"deprecation,omitempty" mapstructure:"deprecation"`
}

// field returns the link attribute with the given JSON name, used for
// secondary key lookups like "rel[name:foo]".
func (l Link) field(name string) (string, bool) {
	switch name {
	case "href":
		return l.Href, true
	case "type":
		return l.Type, true
	case "name":
		return l.Name, true
	case "title":
		return l.Title, true
	case "profile":
		return l.Profile, true
	case "hreflang":
		return l.Hreflang, true
	case "deprecation":
		return l.Deprecation, true
	case "templated":
		if l.Templated {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// Curie is a compact URI prefix declared in a resource's "curies" links.
type Curie struct {
	Name      string `json:"name"`
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
}

// Expand turns a reference like "ex:widget" into the full relation URL.
func (c Curie) Expand(reference string) string {
	if c.Templated || strings.Contains(c.Href, "{rel}") {
		return strings.ReplaceAll(c.Href, "{rel}", reference)
	}
	return c.Href + reference
}

// Resource is a parsed HAL document.
type Resource struct {
	links    map[string][]Link
	embedded map[string][]*Resource
	curies   []Curie
	props    map[string]any

	// raw is the complete document as decoded, bookkeeping included.
	raw map[string]any

	// embeddedFragment is set for resources found under another
	// resource's _embedded, which are not required to carry a self link.
	embeddedFragment bool
}

// Parse decodes a HAL+JSON document.
func Parse(data []byte) (*Resource, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding HAL document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("error decoding HAL document: not a JSON object")
	}
	return FromMap(doc), nil
}

// FromMap builds a Resource from an already-decoded JSON object. The map is
// kept as the raw document and must not be modified afterwards.
func FromMap(doc map[string]any) *Resource {
	r := &Resource{
		links:    map[string][]Link{},
		embedded: map[string][]*Resource{},
		props:    map[string]any{},
		raw:      doc,
	}

	for k, v := range doc {
		switch k {
		case linksKey:
			r.parseLinks(v)
		case embeddedKey:
			r.parseEmbedded(v)
		default:
			r.props[k] = v
		}
	}

	return r
}

func (r *Resource) parseLinks(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	for rel, raw := range m {
		var links []Link
		switch lv := raw.(type) {
		case []any:
			for _, item := range lv {
				if obj, ok := item.(map[string]any); ok {
					links = append(links, linkFromMap(obj))
				}
			}
		case map[string]any:
			links = append(links, linkFromMap(lv))
		}
		if rel == curiesRel {
			for _, l := range links {
				r.curies = append(r.curies, Curie{
					Name:      l.Name,
					Href:      l.Href,
					Templated: l.Templated,
				})
			}
			continue
		}
		r.links[rel] = links
	}
}

func (r *Resource) parseEmbedded(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	for rel, raw := range m {
		var docs []*Resource
		switch ev := raw.(type) {
		case []any:
			for _, item := range ev {
				if obj, ok := item.(map[string]any); ok {
					docs = append(docs, embeddedFromMap(obj))
				}
			}
		case map[string]any:
			docs = append(docs, embeddedFromMap(ev))
		}
		r.embedded[rel] = docs
	}
}

func embeddedFromMap(doc map[string]any) *Resource {
	r := FromMap(doc)
	r.embeddedFragment = true
	return r
}

func linkFromMap(m map[string]any) Link {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	templated, _ := m["templated"].(bool)
	return Link{
		Href:        str("href"),
		Templated:   templated,
		Type:        str("type"),
		Name:        str("name"),
		Title:       str("title"),
		Profile:     str("profile"),
		Hreflang:    str("hreflang"),
		Deprecation: str("deprecation"),
	}
}

// Link returns the first link for rel, or nil.
func (r *Resource) Link(rel string) *Link {
	links := r.LinkArray(rel)
	if len(links) == 0 {
		return nil
	}
	l := links[0]
	return &l
}

// LinkArray returns all links for rel, or nil if the relation is absent.
func (r *Resource) LinkArray(rel string) []Link {
	for _, k := range r.lookupKeys(rel) {
		if links, ok := r.links[k]; ok {
			return links
		}
	}
	return nil
}

// EmbeddedResource returns the first embedded resource for rel, or nil.
func (r *Resource) EmbeddedResource(rel string) *Resource {
	docs := r.EmbeddedArray(rel)
	if len(docs) == 0 {
		return nil
	}
	return docs[0]
}

// EmbeddedArray returns all embedded resources for rel, or nil if the
// relation is absent.
func (r *Resource) EmbeddedArray(rel string) []*Resource {
	for _, k := range r.lookupKeys(rel) {
		if docs, ok := r.embedded[k]; ok {
			return docs
		}
	}
	return nil
}

// HasLink reports whether rel is present in _links.
func (r *Resource) HasLink(rel string) bool {
	return r.LinkArray(rel) != nil
}

// HasEmbedded reports whether rel is present in _embedded.
func (r *Resource) HasEmbedded(rel string) bool {
	return r.EmbeddedArray(rel) != nil
}

// Curies returns the curie definitions of the resource.
func (r *Resource) Curies() []Curie {
	return r.curies
}

// LinkRels returns the link relation names, sorted.
func (r *Resource) LinkRels() []string {
	return sortedKeys(r.links)
}

// EmbeddedRels returns the embedded relation names, sorted.
func (r *Resource) EmbeddedRels() []string {
	return sortedKeys(r.embedded)
}

// Property returns a top-level property other than _links and _embedded.
func (r *Resource) Property(name string) (any, bool) {
	v, ok := r.props[name]
	return v, ok
}

// StringProperty returns a string property or "".
func (r *Resource) StringProperty(name string) string {
	s, _ := r.props[name].(string)
	return s
}

// Properties returns the properties other than _links and _embedded.
func (r *Resource) Properties() map[string]any {
	return r.props
}

// Document returns the raw decoded document, bookkeeping included.
func (r *Resource) Document() map[string]any {
	return r.raw
}

// SelfURL returns the href of the self link or "".
func (r *Resource) SelfURL() string {
	if l := r.Link(selfRel); l != nil {
		return l.Href
	}
	return ""
}

// IsEmbedded reports whether the resource was found under _embedded.
func (r *Resource) IsEmbedded() bool {
	return r.embeddedFragment
}

// MarshalJSON writes the raw document back out.
func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw)
}

// ReverseResolveCurie maps a full relation URL back to its "prefix:name"
// form using the resource's curies. It returns "" if no curie matches.
func (r *Resource) ReverseResolveCurie(fullRel string) string {
	for _, c := range r.curies {
		prefix, suffix, ok := strings.Cut(c.Href, "{rel}")
		if !ok {
			prefix, suffix = c.Href, ""
		}
		if prefix == "" || !strings.HasPrefix(fullRel, prefix) ||
			!strings.HasSuffix(fullRel, suffix) ||
			len(fullRel) < len(prefix)+len(suffix) {
			continue
		}
		name := fullRel[len(prefix) : len(fullRel)-len(suffix)]
		if name == "" {
			continue
		}
		return c.Name + ":" + name
	}
	return ""
}

// ResolveCurie expands "prefix:name" into a full relation URL. It returns ""
// if rel has no known curie prefix.
func (r *Resource) ResolveCurie(rel string) string {
	prefix, name, ok := strings.Cut(rel, ":")
	if !ok || name == "" {
		return ""
	}
	for _, c := range r.curies {
		if c.Name == prefix {
			return c.Expand(name)
		}
	}
	return ""
}

// lookupKeys lists the relation names under which rel may be stored: as
// given, curie-reversed, and curie-expanded.
func (r *Resource) lookupKeys(rel string) []string {
	keys := []string{rel}
	if len(r.curies) == 0 {
		return keys
	}
	if rev := r.ReverseResolveCurie(rel); rev != "" && rev != rel {
		keys = append(keys, rev)
	}
	if full := r.ResolveCurie(rel); full != "" && full != rel {
		keys = append(keys, full)
	}
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
