// Package genieacs is a small client for the GenieACS northbound interface (NBI).
package genieacs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/genieacs-gateway/internal/logging"
	"github.com/John-Robertt/genieacs-gateway/internal/model"
)

type Op int

const (
	OpListDevices Op = iota
	OpGetDevice
	OpDeleteDevice
	OpAddTask
)

func (o Op) stage() string {
	switch o {
	case OpListDevices:
		return "upstream_list_devices"
	case OpGetDevice:
		return "upstream_get_device"
	case OpDeleteDevice:
		return "upstream_delete_device"
	case OpAddTask:
		return "upstream_add_task"
	default:
		return "upstream"
	}
}

// targetsDevice reports whether an upstream 404 means "no such device".
func (o Op) targetsDevice() bool {
	return o == OpDeleteDevice || o == OpAddTask
}

type Options struct {
	Timeout   time.Duration // per upstream request; default 10s
	MaxBytes  int64         // response body cap; default 32 MiB
	Logger    *zap.Logger
	Transport http.RoundTripper // default: a clone of http.DefaultTransport
}

// ErrDeviceNotFound is returned when GenieACS has no device with the given id.
var ErrDeviceNotFound = errors.New("device not found")

// UpstreamError describes a failed exchange with GenieACS. Status is the
// status the gateway should answer with, not the upstream one.
type UpstreamError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

type Client struct {
	base     *url.URL
	hc       *http.Client
	maxBytes int64
	log      *zap.Logger

	// Identical concurrent GETs share one upstream round trip.
	group singleflight.Group
}

func New(baseURL string, opt Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("genieacs: base URL must be an absolute http(s) URL, got %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	transport := opt.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Client{
		base:     u,
		hc:       &http.Client{Timeout: timeout, Transport: transport},
		maxBytes: maxBytes,
		log:      logging.OrNop(opt.Logger).Named("genieacs"),
	}, nil
}

// Close releases idle upstream connections.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

// BaseURL returns the NBI root the client talks to.
func (c *Client) BaseURL() string { return c.base.String() }

// ListDevices returns the upstream JSON array verbatim. query is a GenieACS
// (MongoDB-style) JSON filter; empty means all devices.
func (c *Client) ListDevices(ctx context.Context, query string) (json.RawMessage, error) {
	q := url.Values{}
	if strings.TrimSpace(query) != "" {
		q.Set("query", query)
	}
	body, err := c.get(ctx, OpListDevices, "/devices/", q)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("[]"), nil
	}
	if !isJSONArray(body) {
		return nil, badResponse(OpListDevices, c.endpoint("/devices/", q), errors.New("expected a JSON array"))
	}
	return json.RawMessage(body), nil
}

// FindDevice returns the device document whose _id equals id.
func (c *Client) FindDevice(ctx context.Context, id string) (json.RawMessage, error) {
	filter, err := json.Marshal(map[string]string{"_id": id})
	if err != nil {
		return nil, err
	}
	q := url.Values{"query": {string(filter)}}
	body, err := c.get(ctx, OpGetDevice, "/devices/", q)
	if err != nil {
		return nil, err
	}

	var devices []json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &devices); err != nil {
			return nil, badResponse(OpGetDevice, c.endpoint("/devices/", q), err)
		}
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}
	return devices[0], nil
}

// DeleteDevice looks the device up and deletes it by its canonical _id.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	doc, err := c.FindDevice(ctx, id)
	if err != nil {
		return err
	}
	var head struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil || head.ID == "" {
		return badResponse(OpGetDevice, c.endpoint("/devices/", nil), errors.Join(errors.New("device document has no _id"), err))
	}

	_, _, err = c.do(ctx, OpDeleteDevice, http.MethodDelete, "/devices/"+url.PathEscape(head.ID), nil, nil)
	return err
}

type TaskOptions struct {
	// Timeout is forwarded as ?timeout=<ms>; zero leaves it to GenieACS.
	Timeout time.Duration
	// ConnectionRequest asks GenieACS to wake the device immediately.
	ConnectionRequest bool
}

// TaskResult is the upstream answer to a task POST: 200 when the task ran
// within the timeout, 202 when it was only queued.
type TaskResult struct {
	Status int
	Body   json.RawMessage // nil when the upstream body was empty
}

func (c *Client) AddTask(ctx context.Context, id string, task json.RawMessage, opt TaskOptions) (TaskResult, error) {
	q := url.Values{}
	if opt.Timeout > 0 {
		q.Set("timeout", strconv.FormatInt(opt.Timeout.Milliseconds(), 10))
	}
	if opt.ConnectionRequest {
		q.Set("connection_request", "")
	}

	p := "/devices/" + url.PathEscape(id) + "/tasks"
	status, body, err := c.do(ctx, OpAddTask, http.MethodPost, p, q, task)
	if err != nil {
		return TaskResult{}, err
	}
	res := TaskResult{Status: status}
	if len(bytes.TrimSpace(body)) > 0 {
		if !json.Valid(body) {
			return TaskResult{}, badResponse(OpAddTask, c.endpoint(p, q), errors.New("task response is not JSON"))
		}
		res.Body = json.RawMessage(body)
	}
	return res, nil
}

// endpoint joins the base URL with an already escaped path.
func (c *Client) endpoint(escapedPath string, q url.Values) string {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + escapedPath
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	} else {
		u.Path = c.base.Path + escapedPath
		u.RawPath = ""
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// get coalesces identical in-flight GETs. The shared request is detached from
// any single caller's cancellation; each caller still stops waiting when its
// own context ends.
func (c *Client) get(ctx context.Context, op Op, p string, q url.Values) ([]byte, error) {
	key := c.endpoint(p, q)
	ch := c.group.DoChan(key, func() (any, error) {
		_, body, err := c.do(context.WithoutCancel(ctx), op, http.MethodGet, p, q, nil)
		return body, err
	})
	select {
	case <-ctx.Done():
		return nil, classifyTransportError(op, key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) do(ctx context.Context, op Op, method, p string, q url.Values, body []byte) (int, []byte, error) {
	target := c.endpoint(p, q)
	stage := op.stage()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, &UpstreamError{
			Status: http.StatusBadRequest,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "upstream request URL is invalid",
				Stage:   stage,
				Source:  target,
			},
			Cause: err,
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("upstream request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err))
		return 0, nil, classifyTransportError(op, target, err)
	}
	defer resp.Body.Close()

	// Read at most maxBytes+1 to detect overflow deterministically.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	c.log.Debug("upstream request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("dur", time.Since(start)))
	if err != nil {
		return 0, nil, classifyTransportError(op, target, err)
	}
	if int64(len(data)) > c.maxBytes {
		return 0, nil, &UpstreamError{
			Status: http.StatusBadGateway,
			AppError: model.AppError{
				Code:    "UPSTREAM_TOO_LARGE",
				Message: fmt.Sprintf("upstream response too large (>%d bytes)", c.maxBytes),
				Stage:   stage,
				Source:  target,
			},
		}
	}

	if resp.StatusCode == http.StatusNotFound && op.targetsDevice() {
		return 0, nil, ErrDeviceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, nil, &UpstreamError{
			Status: http.StatusBadGateway,
			AppError: model.AppError{
				Code:    "UPSTREAM_FAILED",
				Message: fmt.Sprintf("GenieACS returned non-2xx status: %d", resp.StatusCode),
				Stage:   stage,
				Source:  target,
				Snippet: model.TruncateSnippet(string(data), 200),
			},
		}
	}
	return resp.StatusCode, data, nil
}

func classifyTransportError(op Op, target string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &UpstreamError{
			Status: http.StatusGatewayTimeout,
			AppError: model.AppError{
				Code:    "UPSTREAM_TIMEOUT",
				Message: "GenieACS did not answer in time",
				Stage:   op.stage(),
				Source:  target,
			},
			Cause: err,
		}
	}
	return &UpstreamError{
		Status: http.StatusBadGateway,
		AppError: model.AppError{
			Code:    "UPSTREAM_FAILED",
			Message: "request to GenieACS failed",
			Stage:   op.stage(),
			Source:  target,
		},
		Cause: err,
	}
}

func badResponse(op Op, target string, err error) error {
	return &UpstreamError{
		Status: http.StatusBadGateway,
		AppError: model.AppError{
			Code:    "UPSTREAM_BAD_RESPONSE",
			Message: "GenieACS returned an unexpected response body",
			Stage:   op.stage(),
			Source:  target,
		},
		Cause: err,
	}
}

func isJSONArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '[' && json.Valid(b)
}
