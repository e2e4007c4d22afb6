package traverson

import (
	"maps"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Doer performs HTTP requests.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config is an immutable traversal description. Methods that change it
// return a modified copy, so a Config can be shared and reused freely.
type Config struct {
	startURL string
	start    *Step
	links    []string

	headers            http.Header
	query              url.Values
	templateParams     map[string]any
	stepTemplateParams []map[string]any

	mediaType       string
	resolveRelative bool
	preferEmbedded  bool
	skipParse       bool

	client  Doer
	logger  hclog.Logger
	timeout time.Duration
}

// Option configures a Config.
type Option func(*Config)

// New returns a Config starting at startURL.
func New(startURL string, opts ...Option) Config {
	c := Config{startURL: startURL}
	return c.With(opts...)
}

// With returns a copy of c with opts applied.
func (c Config) With(opts ...Option) Config {
	n := c.clone()
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// Follow returns a copy of c with rels appended to the relation list.
func (c Config) Follow(rels ...string) Config {
	n := c.clone()
	n.links = append(n.links, rels...)
	return n
}

// NewRequest returns a copy of c sharing its configuration but with an
// empty relation list.
func (c Config) NewRequest() Config {
	n := c.clone()
	n.links = nil
	return n
}

// Links returns the relation keys that will be followed.
func (c Config) Links() []string {
	return slices.Clone(c.links)
}

// StartURL returns the URL the traversal starts from.
func (c Config) StartURL() string {
	if c.start != nil && c.start.URL != "" {
		return c.start.URL
	}
	return c.startURL
}

func (c Config) clone() Config {
	n := c
	n.links = slices.Clone(c.links)
	n.headers = c.headers.Clone()
	n.query = cloneValues(c.query)
	n.templateParams = maps.Clone(c.templateParams)
	if c.stepTemplateParams != nil {
		n.stepTemplateParams = make([]map[string]any, len(c.stepTemplateParams))
		for i, p := range c.stepTemplateParams {
			n.stepTemplateParams[i] = maps.Clone(p)
		}
	}
	if c.start != nil {
		s := *c.start
		n.start = &s
	}
	return n
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	n := make(url.Values, len(v))
	for k, vals := range v {
		n[k] = slices.Clone(vals)
	}
	return n
}

// templateParamsFor returns the template parameters for step index i.
func (c Config) templateParamsFor(i int) map[string]any {
	if c.stepTemplateParams != nil {
		if i < len(c.stepTemplateParams) {
			return c.stepTemplateParams[i]
		}
		return nil
	}
	return c.templateParams
}

// WithLinks replaces the relation list.
func WithLinks(rels ...string) Option {
	return func(c *Config) {
		c.links = slices.Clone(rels)
	}
}

// WithHeader adds a request header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Add(key, value)
	}
}

// WithQuery merges query values into the final request URL.
func WithQuery(q url.Values) Option {
	return func(c *Config) {
		if c.query == nil {
			c.query = url.Values{}
		}
		for k, vals := range q {
			c.query[k] = append(c.query[k], vals...)
		}
	}
}

// WithTemplateParams sets parameters shared by every templated link.
func WithTemplateParams(params map[string]any) Option {
	return func(c *Config) {
		c.templateParams = maps.Clone(params)
		c.stepTemplateParams = nil
	}
}

// WithStepTemplateParams sets one parameter set per step; the set at index
// i is used for the i-th relation.
func WithStepTemplateParams(params ...map[string]any) Option {
	return func(c *Config) {
		c.stepTemplateParams = make([]map[string]any, len(params))
		for i, p := range params {
			c.stepTemplateParams[i] = maps.Clone(p)
		}
		c.templateParams = nil
	}
}

// WithMediaType forces a media type instead of negotiating it from each
// response's Content-Type.
func WithMediaType(mediaType string) Option {
	return func(c *Config) {
		c.mediaType = mediaType
	}
}

// WithResolveRelative resolves relative links against the previous step's
// URL instead of the start URL.
func WithResolveRelative(enabled bool) Option {
	return func(c *Config) {
		c.resolveRelative = enabled
	}
}

// WithPreferEmbedded makes embedded resources win over links.
func WithPreferEmbedded(enabled bool) Option {
	return func(c *Config) {
		c.preferEmbedded = enabled
	}
}

// WithoutResponseParsing leaves bodies of POST/PUT/PATCH/DELETE responses
// unparsed.
func WithoutResponseParsing() Option {
	return func(c *Config) {
		c.skipParse = true
	}
}

// WithClient sets the HTTP client.
func WithClient(client Doer) Option {
	return func(c *Config) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithTimeout bounds the whole traversal. Exceeding it aborts the traversal
// with a timeout AbortError.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.timeout = d
	}
}

// WithStart starts the traversal at a previously reached step.
func WithStart(step Step) Option {
	return func(c *Config) {
		s := step
		c.start = &s
	}
}
