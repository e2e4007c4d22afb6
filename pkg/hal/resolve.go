package hal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

var (
	// ErrRelationNotFound is returned when a relation has neither a link nor
	// an embedded resource.
	ErrRelationNotFound = errors.New("relation not found")

	// ErrSecondaryKeyNotFound is returned when no element of a relation
	// matches a "rel[field:value]" key.
	ErrSecondaryKeyNotFound = errors.New("secondary key not found")

	// ErrIndexOutOfRange is returned for "rel[N]" keys past the end of the
	// relation.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// ResolutionError is returned when a key can be resolved neither as a link
// nor as an embedded resource.
type ResolutionError struct {
	Key Key

	// Err aggregates the link and embedded lookup failures.
	Err error

	// Document is the raw document the key was resolved against.
	Document map[string]any
}

func (e *ResolutionError) Error() string {
	doc, _ := json.Marshal(e.Document)
	return fmt.Sprintf("could not resolve %q: %v; document: %s", e.Key.String(), e.Err, doc)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Target is the outcome of resolving a key: a URL to follow, an embedded
// document that satisfies the step without a request, or (for $all keys) the
// full embedded array.
type Target struct {
	URL       string
	Templated bool
	Doc       *Resource
	Docs      []*Resource
	All       bool
}

// Resolver resolves relation keys against resources.
type Resolver struct {
	// PreferEmbedded makes embedded resources win over links when both
	// exist for a relation.
	PreferEmbedded bool

	Logger hclog.Logger
}

// Resolve finds the link or embedded resource addressed by key.
func (rs Resolver) Resolve(r *Resource, key Key) (*Target, error) {
	logger := rs.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if key.Mode == KeyAll {
		docs := r.EmbeddedArray(key.Rel)
		if docs == nil {
			docs = []*Resource{}
		}
		return &Target{Docs: docs, All: true}, nil
	}

	linkTarget, linkErr := rs.resolveLink(r, key, logger)
	embeddedTarget, embeddedErr := rs.resolveEmbedded(r, key, logger)

	switch {
	case linkTarget != nil && embeddedTarget != nil:
		if rs.PreferEmbedded {
			return embeddedTarget, nil
		}
		return linkTarget, nil
	case linkTarget != nil:
		return linkTarget, nil
	case embeddedTarget != nil:
		return embeddedTarget, nil
	}

	var merr *multierror.Error
	merr = multierror.Append(merr,
		fmt.Errorf("link: %w", linkErr),
		fmt.Errorf("embedded: %w", embeddedErr),
	)
	return nil, &ResolutionError{
		Key:      key,
		Err:      merr.ErrorOrNil(),
		Document: r.Document(),
	}
}

func (rs Resolver) resolveLink(r *Resource, key Key, logger hclog.Logger) (*Target, error) {
	links := r.LinkArray(key.Rel)
	if links == nil {
		return nil, fmt.Errorf("%w: %s", ErrRelationNotFound, key.Rel)
	}

	toTarget := func(l Link) *Target {
		return &Target{URL: l.Href, Templated: l.Templated}
	}

	switch key.Mode {
	case KeyIndexed:
		if key.Index < 0 || key.Index >= len(links) {
			return nil, fmt.Errorf("%w: %s has %d links, wanted index %d",
				ErrIndexOutOfRange, key.Rel, len(links), key.Index)
		}
		return toTarget(links[key.Index]), nil

	case KeySecondary:
		for _, l := range links {
			if v, ok := l.field(key.Field); ok && v == key.Value {
				return toTarget(l), nil
			}
		}
		return nil, fmt.Errorf("%w: no link %s with %s=%s",
			ErrSecondaryKeyNotFound, key.Rel, key.Field, key.Value)
	}

	var candidates []Link
	for _, l := range links {
		if l.Href != "" {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s has no link with an href", ErrRelationNotFound, key.Rel)
	}
	if len(candidates) > 1 {
		logger.Warn("relation has multiple links, using the first one",
			"rel", key.Rel,
			"count", len(candidates),
		)
	}
	return toTarget(candidates[0]), nil
}

func (rs Resolver) resolveEmbedded(r *Resource, key Key, logger hclog.Logger) (*Target, error) {
	docs := r.EmbeddedArray(key.Rel)
	if docs == nil {
		return nil, fmt.Errorf("%w: %s", ErrRelationNotFound, key.Rel)
	}

	switch key.Mode {
	case KeyIndexed:
		if key.Index < 0 || key.Index >= len(docs) {
			return nil, fmt.Errorf("%w: %s has %d embedded resources, wanted index %d",
				ErrIndexOutOfRange, key.Rel, len(docs), key.Index)
		}
		return &Target{Doc: docs[key.Index]}, nil

	case KeySecondary:
		for _, d := range docs {
			if v, ok := d.Property(key.Field); ok && PropertyEquals(v, key.Value) {
				return &Target{Doc: d}, nil
			}
		}
		return nil, fmt.Errorf("%w: no embedded %s with %s=%s",
			ErrSecondaryKeyNotFound, key.Rel, key.Field, key.Value)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrRelationNotFound, key.Rel)
	}
	if len(docs) > 1 {
		logger.Warn("relation has multiple embedded resources, using the first one",
			"rel", key.Rel,
			"count", len(docs),
		)
	}
	return &Target{Doc: docs[0]}, nil
}

// PropertyEquals compares a decoded JSON value against the textual value of
// a secondary key. Strings compare exactly, numbers compare numerically when
// the text parses as a number, and booleans compare against "true"/"false".
// Objects, arrays and null never match.
func PropertyEquals(v any, text string) bool {
	switch tv := v.(type) {
	case string:
		return tv == text
	case bool:
		b, err := strconv.ParseBool(text)
		return err == nil && b == tv
	case float64:
		f, err := strconv.ParseFloat(text, 64)
		return err == nil && f == tv
	case json.Number:
		a, ok1 := new(big.Float).SetString(tv.String())
		b, ok2 := new(big.Float).SetString(text)
		return ok1 && ok2 && a.Cmp(b) == 0
	case int:
		i, err := strconv.Atoi(text)
		return err == nil && i == tv
	case int64:
		i, err := strconv.ParseInt(text, 10, 64)
		return err == nil && i == tv
	}
	return false
}
