package traverson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
)

const defaultAccept = MediaTypeHAL + ", " + MediaTypeJSON + ";q=0.9"

// walker executes one traversal. It is created per run and never shared.
type walker struct {
	cfg      Config
	client   Doer
	logger   hclog.Logger
	forced   Adapter
	setState func(State)
}

func newWalker(cfg Config, logger hclog.Logger, setState func(State)) (*walker, error) {
	w := &walker{
		cfg:      cfg,
		client:   cfg.client,
		logger:   logger,
		setState: setState,
	}
	if w.client == nil {
		w.client = http.DefaultClient
	}
	if cfg.mediaType != "" {
		a, ok := adapters[cfg.mediaType]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, cfg.mediaType)
		}
		w.forced = a
	}
	return w, nil
}

// stepState carries the adapter that produced a step's document alongside
// the exported Step.
type stepState struct {
	Step
	adapter Adapter
}

func (w *walker) initialStep() (stepState, error) {
	if w.cfg.start != nil {
		return stepState{Step: *w.cfg.start}, nil
	}
	if w.cfg.startURL == "" {
		return stepState{}, fmt.Errorf("traversal has no start URL")
	}
	return stepState{Step: Step{URL: w.cfg.startURL}}, nil
}

func (w *walker) run(ctx context.Context, method string, body any, urlOnly bool) (*Result, error) {
	step, err := w.initialStep()
	if err != nil {
		return nil, err
	}

	for i, raw := range w.cfg.links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.setState(StatePendingStep)

		key, err := hal.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		if step.All {
			return nil, fmt.Errorf("cannot follow %q from a $all selection", raw)
		}

		if step.Doc == nil {
			w.setState(StateFetching)
			resp, err := w.do(ctx, http.MethodGet, step.URL, nil, false)
			if err != nil {
				return nil, err
			}
			doc, adapter, err := w.parse(resp)
			if err != nil {
				return nil, err
			}
			step.Doc, step.Response, step.adapter = doc, resp, adapter
		}

		adapter := step.adapter
		if w.forced != nil {
			adapter = w.forced
		}
		if adapter == nil {
			adapter = adapters[MediaTypeHAL]
		}

		target, err := adapter.Resolve(step.Doc, key, w.cfg.preferEmbedded, w.logger)
		if err != nil {
			return nil, err
		}

		next := stepState{Step: Step{Index: i + 1}, adapter: adapter}
		switch {
		case target.All:
			next.Docs, next.All = target.Docs, true
		case target.Doc != nil:
			next.Doc = target.Doc
			if self := target.Doc.SelfURL(); self != "" {
				if next.URL, err = w.resolveURL(step.Step, self); err != nil {
					return nil, err
				}
			}
		default:
			expanded, err := ExpandTemplate(target.URL, w.cfg.templateParamsFor(i))
			if err != nil {
				return nil, err
			}
			if next.URL, err = w.resolveURL(step.Step, expanded); err != nil {
				return nil, err
			}
		}

		w.logger.Trace("resolved step", "rel", raw, "index", i, "url", next.URL,
			"embedded", next.Doc != nil)
		step = next
		w.setState(StateStepResolved)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.final(ctx, step, method, body, urlOnly)
}

func (w *walker) final(ctx context.Context, step stepState, method string, body any, urlOnly bool) (*Result, error) {
	result := &Result{URL: step.URL, cfg: w.cfg}

	if urlOnly {
		if step.URL == "" {
			return nil, fmt.Errorf("final step has no URL")
		}
		result.step = step.Step
		return result, nil
	}

	if method == http.MethodGet {
		switch {
		case step.All:
			result.Resources = step.Docs
			result.step = step.Step
			return result, nil
		case step.Doc != nil:
			result.Resource = step.Doc
			result.Response = step.Response
			result.step = step.Step
			return result, nil
		}
	}

	if step.URL == "" {
		return nil, fmt.Errorf("final step has no URL to %s", method)
	}

	w.setState(StateFetching)
	resp, err := w.do(ctx, method, step.URL, body, true)
	if err != nil {
		return nil, err
	}
	result.Response = resp
	step.Response = resp

	if method == http.MethodGet || (!w.cfg.skipParse && len(bytes.TrimSpace(resp.Body)) > 0) {
		doc, adapter, err := w.parse(resp)
		if err != nil {
			return nil, err
		}
		result.Resource = doc
		step.Doc, step.adapter = doc, adapter
	}

	result.step = step.Step
	return result, nil
}

func (w *walker) resolveURL(prev Step, ref string) (string, error) {
	base := w.cfg.StartURL()
	if w.cfg.resolveRelative && prev.URL != "" {
		base = prev.URL
	}

	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}

func (w *walker) parse(resp *Response) (*hal.Resource, Adapter, error) {
	adapter := w.forced
	if adapter == nil {
		var err error
		if adapter, err = adapterFor(resp.Header.Get("Content-Type")); err != nil {
			return nil, nil, err
		}
	}
	doc, err := adapter.Parse(resp.Body)
	if err != nil {
		return nil, nil, &JSONError{URL: resp.URL, Body: resp.Body, Err: err}
	}
	return doc, adapter, nil
}

func (w *walker) do(ctx context.Context, method, rawURL string, body any, final bool) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	if final && len(w.cfg.query) > 0 {
		q := u.Query()
		for k, vals := range w.cfg.query {
			q.Del(k)
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	accept := defaultAccept
	if w.cfg.mediaType != "" {
		accept = w.cfg.mediaType
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vals := range w.cfg.headers {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	w.logger.Debug("sending request", "method", method, "url", req.URL.String())

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, req.URL, err)
	}

	w.logger.Debug("received response", "method", method, "url", req.URL.String(),
		"status", resp.StatusCode)

	r := &Response{
		Method:     method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        r.URL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
	}
	return r, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), MediaTypeJSON, nil
	case json.RawMessage:
		return bytes.NewReader(b), MediaTypeJSON, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), MediaTypeJSON, nil
}
