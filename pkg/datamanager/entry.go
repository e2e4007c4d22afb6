package datamanager

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
)

// Entry is one record of a model. Field values live apart from the API's
// bookkeeping properties, so Save sends model fields only. It is safe for
// concurrent use.
type Entry struct {
	model *Model

	mu         sync.RWMutex
	id         string
	title      string
	modelTitle string
	created    time.Time
	modified   time.Time
	fields     map[string]any
	resource   *hal.Resource
}

func newEntry(m *Model, doc *hal.Resource) *Entry {
	e := &Entry{model: m}
	e.load(doc)
	return e
}

// load replaces the entry's state with doc. Callers hold e.mu or own e.
func (e *Entry) load(doc *hal.Resource) {
	e.resource = doc
	e.fields = domainFields(doc)
	e.id = doc.StringProperty("_id")
	if e.id == "" {
		e.id = doc.StringProperty("id")
	}
	e.title = doc.StringProperty("_entryTitle")
	e.modelTitle = doc.StringProperty("_modelTitle")
	if e.modelTitle == "" && e.model != nil {
		e.modelTitle = e.model.Title
	}
	e.created = timeProperty(doc, "_created")
	e.modified = timeProperty(doc, "_modified")
}

// ID returns the entry ID.
func (e *Entry) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

// Title returns the value of the model's title field as rendered by the API.
func (e *Entry) Title() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.title
}

// ModelTitle returns the title of the entry's model.
func (e *Entry) ModelTitle() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelTitle
}

// Created returns the creation time.
func (e *Entry) Created() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.created
}

// Modified returns the time of the last change.
func (e *Entry) Modified() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modified
}

// Model returns the model the entry belongs to.
func (e *Entry) Model() *Model {
	return e.model
}

// Resource returns the wire document the entry was built from.
func (e *Entry) Resource() *hal.Resource {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resource
}

// Value returns a field value.
func (e *Entry) Value(field string) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fields[field]
}

// Set changes a field value locally. Call Save to persist it.
func (e *Entry) Set(field string, value any) error {
	if isSystemField(field) {
		return fmt.Errorf("cannot set system field %q", field)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[field] = value
	return nil
}

// Fields returns a copy of the field values.
func (e *Entry) Fields() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.fields)
}

// FieldNames lists the fields in sorted order.
func (e *Entry) FieldNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.fields))
}

// LinkedEntryIDs returns the IDs referenced by an entry or entries field.
// Values may be plain IDs or embedded entry objects.
func (e *Entry) LinkedEntryIDs(field string) []string {
	v := e.Value(field)

	var values []any
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		values = x
	default:
		values = []any{x}
	}

	ids := make([]string, 0, len(values))
	for _, item := range values {
		switch x := item.(type) {
		case string:
			ids = append(ids, x)
		case map[string]any:
			if id := stringOf(x["_id"]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Decode copies the field values into v, a pointer to a struct with
// mapstructure tags.
func (e *Entry) Decode(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           v,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(e.Fields()); err != nil {
		return fmt.Errorf("error decoding entry %q: %w", e.ID(), err)
	}
	return nil
}

// Save writes the field values to the entry's self link. The entry is
// replaced by the server's representation unless it answers 204.
func (e *Entry) Save(ctx context.Context) error {
	c := e.model.client
	doc := e.Resource()
	if doc.SelfURL() == "" {
		return c.fail(fmt.Errorf("entry %q has no self link", e.ID()))
	}

	res, err := c.at(doc).Put(ctx, e.Fields())
	if err != nil {
		return c.fail(err)
	}
	if res.Response.StatusCode == http.StatusNoContent || res.Resource == nil {
		return nil
	}

	e.mu.Lock()
	e.load(res.Resource)
	e.mu.Unlock()
	return nil
}

// Delete removes the entry.
func (e *Entry) Delete(ctx context.Context) error {
	c := e.model.client
	doc := e.Resource()
	if doc.SelfURL() == "" {
		return c.fail(fmt.Errorf("entry %q has no self link", e.ID()))
	}
	if _, err := c.at(doc).Delete(ctx); err != nil {
		return c.fail(err)
	}
	return nil
}
