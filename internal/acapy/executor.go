package acapy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
	logBodyLimit   = 512
)

// Request describes one admin API call. Body is sent as JSON for POST, PUT
// and DELETE; for GET it is flattened into query parameters alongside Query.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string

	// AllowText accepts a non-JSON success body and returns it as a JSON
	// string instead of failing.
	AllowText bool
}

// Executor performs admin API calls. The error return is reserved for
// programmer errors; every network or agent failure is an Outcome.
type Executor interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// Observer is notified after every completed call.
type Observer func(method, path string, outcome Outcome, elapsed time.Duration)

// HTTPExecutor is the Executor backed by net/http.
type HTTPExecutor struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *logrus.Logger
	observer Observer
}

// Option configures an HTTPExecutor.
type Option func(*HTTPExecutor)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *HTTPExecutor) { e.client = client }
}

// WithTimeout bounds each call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(e *HTTPExecutor) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithObserver installs a completion callback, typically metrics.
func WithObserver(o Observer) Option {
	return func(e *HTTPExecutor) { e.observer = o }
}

// NewHTTPExecutor creates an executor rooted at baseURL.
func NewHTTPExecutor(baseURL string, logger *logrus.Logger, opts ...Option) *HTTPExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &HTTPExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs the call and normalizes the result.
func (e *HTTPExecutor) Execute(ctx context.Context, req Request) (Outcome, error) {
	method := strings.ToUpper(req.Method)
	if !supportedMethod(method) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	target, body, err := e.encode(method, req)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	outcome := e.do(ctx, method, target, body, req.Headers, req.AllowText)
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"method":   method,
		"path":     req.Path,
		"status":   outcome.Status,
		"duration": elapsed.String(),
	}
	if outcome.OK() {
		e.logger.WithFields(fields).Debug("Agent call succeeded")
	} else {
		fields["kind"] = outcome.Err.Kind.String()
		fields["detail"] = truncate(outcome.Err.Message, logBodyLimit)
		e.logger.WithFields(fields).Warn("Agent call failed")
	}

	if e.observer != nil {
		e.observer(method, req.Path, outcome, elapsed)
	}
	return outcome, nil
}

func (e *HTTPExecutor) encode(method string, req Request) (string, io.Reader, error) {
	query := url.Values{}
	for k, vs := range req.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	var body io.Reader
	if req.Body != nil {
		if method == http.MethodGet {
			extra, err := queryFromPayload(req.Body)
			if err != nil {
				return "", nil, err
			}
			for k, vs := range extra {
				for _, v := range vs {
					query.Add(k, v)
				}
			}
		} else {
			data, err := json.Marshal(req.Body)
			if err != nil {
				return "", nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			body = bytes.NewReader(data)
		}
	}

	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := e.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target, body, nil
}

func (e *HTTPExecutor) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string, allowText bool) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Queueing for the limiter counts against the call timeout.
	if e.limiter != nil {
		if err := e.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return Failure(NewTransportError(err, "request canceled"))
			}
			return Failure(NewTransportError(err, fmt.Sprintf("request timed out after %s waiting for rate limit", e.timeout)))
		}
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return Failure(NewTransportError(err, ""))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Failure(e.transportFailure(ctx, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Failure(e.transportFailure(ctx, err))
	}

	if !successStatus(method, resp.StatusCode) {
		return Failure(NewApplicationError(resp.StatusCode, string(raw)))
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Success(resp.StatusCode, json.RawMessage("{}"))
	}
	if !json.Valid(trimmed) {
		if allowText {
			quoted, _ := json.Marshal(string(raw))
			return Success(resp.StatusCode, quoted)
		}
		return Failure(NewApplicationError(resp.StatusCode, "invalid JSON in response: "+truncate(string(trimmed), logBodyLimit)))
	}
	return Success(resp.StatusCode, json.RawMessage(trimmed))
}

func (e *HTTPExecutor) transportFailure(parent context.Context, err error) *Error {
	switch {
	case parent.Err() != nil:
		return NewTransportError(err, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransportError(err, fmt.Sprintf("request timed out after %s", e.timeout))
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return NewTransportError(err, urlErr.Err.Error())
		}
		return NewTransportError(err, "")
	}
}

func supportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// successStatus applies the admin API's conventions: only POST may answer 201.
func successStatus(method string, status int) bool {
	if status == http.StatusOK {
		return true
	}
	return method == http.MethodPost && status == http.StatusCreated
}

func queryFromPayload(payload interface{}) (url.Values, error) {
	switch p := payload.(type) {
	case url.Values:
		return p, nil
	case map[string]string:
		out := url.Values{}
		for k, v := range p {
			out.Set(k, v)
		}
		return out, nil
	case map[string]interface{}:
		out := url.Values{}
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := p[k].(type) {
			case nil:
			case string:
				out.Set(k, v)
			case bool, int, int64, float64:
				out.Set(k, fmt.Sprint(v))
			default:
				return nil, fmt.Errorf("query parameter %q has unsupported type %T", k, v)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("GET payload must be a flat map, got %T", payload)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
