package traverson

import (
	"fmt"
	"net/http"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
)

// State is the position of a traversal in its lifecycle.
type State int

const (
	StatePendingStep State = iota
	StateFetching
	StateStepResolved
	StateTerminal
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePendingStep:
		return "pending_step"
	case StateFetching:
		return "fetching"
	case StateStepResolved:
		return "step_resolved"
	case StateTerminal:
		return "terminal"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Step is one hop of a traversal. Exactly one of URL (to be fetched), Doc
// (already available, usually embedded) or Docs (a $all selection) drives
// the next hop; URL is also kept for embedded documents with a self link.
type Step struct {
	URL      string
	Doc      *hal.Resource
	Docs     []*hal.Resource
	All      bool
	Index    int
	Response *Response
}

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is the outcome of a finished traversal.
type Result struct {
	// Resource is the final document: fetched, embedded, or parsed from the
	// response of a POST/PUT/PATCH/DELETE. Nil for empty responses.
	Resource *hal.Resource

	// Resources holds the selection of a final $all key.
	Resources []*hal.Resource

	// Response is the final HTTP response, nil when the final step was
	// satisfied by an embedded document or GetURL.
	Response *Response

	// URL is the URL of the final step.
	URL string

	step Step
	cfg  Config
}

// Continuation captures a finished traversal so a new one can start from its
// last step without repeating requests.
type Continuation struct {
	Step   Step
	Action string

	cfg Config
}

// Continuation returns the continuation of r.
func (r *Result) Continuation() Continuation {
	return Continuation{Step: r.step, Action: r.step.actionName(), cfg: r.cfg}
}

// Continue is shorthand for r.Continuation().Continue().
func (r *Result) Continue() Config {
	return r.Continuation().Continue()
}

// Continue returns a Config sharing the original configuration that starts
// at the captured step with an empty relation list.
func (c Continuation) Continue() Config {
	return c.cfg.NewRequest().With(WithStart(c.Step))
}

func (s Step) actionName() string {
	if s.Response != nil {
		return s.Response.Method
	}
	return http.MethodGet
}
