package datamanager

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
)

// DefaultBaseURL is the API host used when only an ID is configured.
const DefaultBaseURL = "https://datamanager.entrecode.de"

var shortIDPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Config contains configuration for a Data Manager client.
//
// Either URL or ID identifies the Data Manager:
//
//	datamanager.Config{URL: "https://datamanager.entrecode.de/api/58b9a1f5"}
//	datamanager.Config{ID: "58b9a1f5"}
type Config struct {
	// URL is the public API root; its last path segment is the short ID.
	URL string `json:"url,omitempty"`

	// ID is the short ID of the Data Manager. Used with BaseURL when URL
	// is empty.
	ID string `json:"id,omitempty"`

	// BaseURL is the API host. Default: DefaultBaseURL.
	BaseURL string `json:"baseUrl,omitempty"`

	// AccessToken is sent as a bearer token. Register replaces it.
	AccessToken string `json:"-"`

	// ClientID is passed to authentication endpoints.
	ClientID string `json:"clientId,omitempty"`

	// TLSVerify controls TLS certificate verification
	// Set to false only for development/testing with self-signed certs
	TLSVerify *bool `json:"tlsVerify,omitempty"`

	// Timeout for API requests
	// Default: 30 seconds
	Timeout time.Duration `json:"timeout,omitempty"`

	// ErrorHandler, if set, is called with every error before it is
	// returned to the caller.
	ErrorHandler func(error) `json:"-"`

	// HTTPClient overrides the client built by NewHTTPClient. The bearer
	// token is still injected around its transport.
	HTTPClient *http.Client `json:"-"`

	Logger hclog.Logger `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	tlsVerify := true
	return &Config{
		BaseURL:   DefaultBaseURL,
		TLSVerify: &tlsVerify,
		Timeout:   30 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" && c.ID == "" {
		return &ConfigError{Field: "url", Reason: "either url or id is required"}
	}

	if c.URL != "" {
		if _, _, err := splitRootURL(c.URL); err != nil {
			return err
		}
	} else if !shortIDPattern.MatchString(c.ID) {
		return &ConfigError{Field: "id", Reason: "must be an 8 character short ID, got " + c.ID}
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return &ConfigError{Field: "config", Reason: err.Error()}
	}
	return nil
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_scheme", "must use http or https scheme")
	}
	return nil
}

// splitRootURL returns the API root without trailing slash and its short ID.
func splitRootURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", &ConfigError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", &ConfigError{Field: "url",
			Reason: "must use http or https scheme, got: " + u.Scheme}
	}

	path := strings.TrimRight(u.Path, "/")
	id := path[strings.LastIndex(path, "/")+1:]
	if !shortIDPattern.MatchString(id) {
		return "", "", &ConfigError{Field: "url",
			Reason: "must end in the Data Manager short ID, got " + raw}
	}

	u.Path = path
	u.RawQuery, u.Fragment = "", ""
	return u.String(), id, nil
}

// rootURL resolves the API root and short ID from URL or BaseURL and ID.
func (c *Config) rootURL() (string, string, error) {
	if c.URL != "" {
		return splitRootURL(c.URL)
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/api/" + c.ID, c.ID, nil
}

// NewHTTPClient creates a configured HTTP client for this config
func (c *Config) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	// Configure TLS verification
	if c.TLSVerify != nil && !*c.TLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   c.Timeout,
		Transport: transport,
	}
}
