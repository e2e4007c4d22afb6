package traverson

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
)

// Handle tracks a running traversal. Its result is delivered exactly once:
// either the traversal's own outcome or, if Abort wins the race, an
// AbortError.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	deliver sync.Once
	abort   sync.Once

	mu     sync.Mutex
	state  State
	result *Result
	err    error
}

// Start runs the traversal in the background and finishes with method
// (GET, POST, PUT, PATCH or DELETE) against the final step.
func (c Config) Start(ctx context.Context, method string, body any) *Handle {
	return c.startHandle(ctx, method, body, false)
}

func (c Config) startHandle(ctx context.Context, method string, body any, urlOnly bool) *Handle {
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	h := &Handle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	logger := c.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("traverson").With("traversal", h.id)

	w, err := newWalker(c, logger, h.setState)
	if err != nil {
		h.finish(nil, err)
		cancel()
		return h
	}

	go func() {
		defer cancel()
		res, err := w.run(ctx, method, body, urlOnly)
		if err != nil && ctx.Err() != nil {
			err = abortError(ctx.Err())
		}
		if err != nil {
			logger.Debug("traversal failed", "error", err)
		}
		h.finish(res, err)
	}()

	return h
}

func abortError(cause error) *AbortError {
	return &AbortError{
		Timeout: errors.Is(cause, context.DeadlineExceeded),
		Cause:   cause,
	}
}

// ID identifies the traversal in log output.
func (h *Handle) ID() string {
	return h.id
}

// Abort cancels the in-flight request, if any, and delivers an AbortError
// unless the traversal already finished. Calling it again has no effect.
func (h *Handle) Abort() {
	h.abort.Do(func() {
		h.finish(nil, &AbortError{})
		h.cancel()
	})
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the traversal finishes or is aborted.
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateTerminal || h.state == StateAborted {
		return
	}
	h.state = s
}

func (h *Handle) finish(res *Result, err error) {
	h.deliver.Do(func() {
		h.mu.Lock()
		h.result, h.err = res, err
		var abortErr *AbortError
		if errors.As(err, &abortErr) {
			h.state = StateAborted
		} else {
			h.state = StateTerminal
		}
		h.mu.Unlock()
		close(h.done)
	})
}

// Get follows the relations and returns the final document.
func (c Config) Get(ctx context.Context) (*Result, error) {
	return c.Start(ctx, http.MethodGet, nil).Wait()
}

// GetResource follows the relations and returns the final resource.
func (c Config) GetResource(ctx context.Context) (*hal.Resource, error) {
	res, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return res.Resource, nil
}

// GetURL follows the relations and returns the URL of the final step
// without requesting it.
func (c Config) GetURL(ctx context.Context) (string, error) {
	res, err := c.startHandle(ctx, http.MethodGet, nil, true).Wait()
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// Post follows the relations and POSTs body to the final URL.
func (c Config) Post(ctx context.Context, body any) (*Result, error) {
	return c.Start(ctx, http.MethodPost, body).Wait()
}

// Put follows the relations and PUTs body to the final URL.
func (c Config) Put(ctx context.Context, body any) (*Result, error) {
	return c.Start(ctx, http.MethodPut, body).Wait()
}

// Patch follows the relations and PATCHes body to the final URL.
func (c Config) Patch(ctx context.Context, body any) (*Result, error) {
	return c.Start(ctx, http.MethodPatch, body).Wait()
}

// Delete follows the relations and DELETEs the final URL.
func (c Config) Delete(ctx context.Context) (*Result, error) {
	return c.Start(ctx, http.MethodDelete, nil).Wait()
}
