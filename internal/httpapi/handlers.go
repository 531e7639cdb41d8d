package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/genieacs-gateway/internal/extract"
	"github.com/John-Robertt/genieacs-gateway/internal/genieacs"
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
	"github.com/John-Robertt/genieacs-gateway/internal/model"
	"github.com/John-Robertt/genieacs-gateway/internal/tree"
)

type deviceHandler struct {
	up   Upstream
	dict *mapping.Dictionary
	opt  Options
	log  *zap.Logger
}

type parametersResponse struct {
	DeviceID   string          `json:"device_id"`
	Parameters *extract.Result `json:"parameters"`
}

type selectResponse struct {
	DeviceID string `json:"device_id"`
	Path     string `json:"path"`
	Matches  []any  `json:"matches"`
}

type batchRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

type batchItem struct {
	DeviceID   string          `json:"device_id"`
	Parameters *extract.Result `json:"parameters,omitempty"`
	Error      *model.AppError `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}

func (h *deviceHandler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query != "" && !json.Valid([]byte(query)) {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "query must be a JSON document", `example: query={"_tags":"lab"}`))
		return
	}

	devices, err := h.up.ListDevices(r.Context(), query)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Devices json.RawMessage `json:"devices"`
	}{devices})
}

func (h *deviceHandler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDFrom(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	doc, err := h.up.FindDevice(r.Context(), id)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Device json.RawMessage `json:"device"`
	}{doc})
}

func (h *deviceHandler) handleAllParameters(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDFrom(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	res, err := h.parameters(r.Context(), id)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, parametersResponse{DeviceID: id, Parameters: res})
}

func (h *deviceHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDFrom(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	expr := strings.TrimSpace(r.URL.Query().Get("path"))
	if expr == "" {
		writeDeviceError(w, id, requestError("INVALID_ARGUMENT", "path is required", "a JSONPath expression, e.g. $.InternetGatewayDevice.DeviceInfo.SoftwareVersion._value"))
		return
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		writeDeviceError(w, id, requestError("INVALID_ARGUMENT", "invalid JSONPath expression", err.Error()))
		return
	}

	doc, err := h.up.FindDevice(r.Context(), id)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	data, err := oj.Parse(doc)
	if err != nil {
		writeDeviceError(w, id, badDeviceDocument(err))
		return
	}

	matches := x.Get(data)
	if matches == nil {
		matches = []any{}
	}
	WriteJSON(w, http.StatusOK, selectResponse{DeviceID: id, Path: expr, Matches: matches})
}

func (h *deviceHandler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDFrom(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := h.up.DeleteDevice(r.Context(), id); err != nil {
		writeDeviceError(w, id, err)
		return
	}
	h.log.Info("device deleted", zap.String("device_id", id))
	WriteJSON(w, http.StatusOK, struct {
		Detail string `json:"detail"`
	}{"device deleted"})
}

func (h *deviceHandler) handleAddTask(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDFrom(r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	opt, err := taskOptionsFrom(r.URL.Query())
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	body, err := readBody(w, r, h.opt.MaxBodyBytes)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	task, err := parseTask(body)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}

	res, err := h.up.AddTask(r.Context(), id, task, opt)
	if err != nil {
		writeDeviceError(w, id, err)
		return
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	result := res.Body
	if result == nil {
		result = json.RawMessage("null")
	}
	WriteJSON(w, status, struct {
		Result json.RawMessage `json:"result"`
	}{result})
}

func (h *deviceHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.opt.MaxBodyBytes)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ids, err := h.parseBatch(body)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	ctx := r.Context()
	results := make([]batchItem, len(ids))

	// Failures are per device; one bad id must not cancel the others.
	var g errgroup.Group
	g.SetLimit(h.opt.BatchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := h.parameters(ctx, id)
			if err != nil {
				_, app := classifyError(err)
				app.DeviceID = id
				metricsIncAppError(app.Stage, app.Code)
				h.log.Warn("batch item failed",
					zap.String("device_id", id),
					zap.String("code", app.Code),
					zap.Error(err))
				results[i] = batchItem{DeviceID: id, Error: &app}
				return nil
			}
			results[i] = batchItem{DeviceID: id, Parameters: res}
			return nil
		})
	}
	_ = g.Wait()

	WriteJSON(w, http.StatusOK, batchResponse{Results: results})
}

// parameters fetches one device and runs the dictionary over it.
func (h *deviceHandler) parameters(ctx context.Context, id string) (*extract.Result, error) {
	doc, err := h.up.FindDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	root, err := tree.Parse(doc)
	if err != nil {
		return nil, badDeviceDocument(err)
	}

	start := time.Now()
	res := extract.Extract(root, h.dict)
	metricsIncExtraction(res.Len())
	h.log.Debug("extracted parameters",
		zap.String("device_id", id),
		zap.Int("fields", res.Len()),
		zap.Duration("dur", time.Since(start)))
	return res, nil
}

func (h *deviceHandler) parseBatch(body []byte) ([]string, error) {
	var req batchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, requestError("INVALID_ARGUMENT", "body must be a JSON object", `expected: {"device_ids":["..."]}`)
	}
	if dec.More() {
		return nil, requestError("INVALID_ARGUMENT", "body must contain a single JSON object", "")
	}
	if len(req.DeviceIDs) == 0 {
		return nil, requestError("INVALID_ARGUMENT", "device_ids must not be empty", "")
	}
	if len(req.DeviceIDs) > h.opt.MaxBatchSize {
		return nil, requestError("INVALID_ARGUMENT",
			fmt.Sprintf("too many device_ids (max %d)", h.opt.MaxBatchSize),
			"split the request into smaller batches")
	}
	for i, id := range req.DeviceIDs {
		if strings.TrimSpace(id) == "" {
			return nil, requestError("INVALID_ARGUMENT", fmt.Sprintf("device_ids[%d] is empty", i), "")
		}
	}
	return req.DeviceIDs, nil
}

func deviceIDFrom(r *http.Request) (string, error) {
	id := r.PathValue("device_id")
	if strings.TrimSpace(id) == "" {
		return "", requestError("INVALID_ARGUMENT", "device_id must not be empty", "")
	}
	return id, nil
}

// taskOptionsFrom reads ?timeout= (milliseconds, or a Go duration such as 3s)
// and ?connection_request.
func taskOptionsFrom(q url.Values) (genieacs.TaskOptions, error) {
	var opt genieacs.TaskOptions

	if raw := strings.TrimSpace(q.Get("timeout")); raw != "" {
		var d time.Duration
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if ms > math.MaxInt64/int64(time.Millisecond) {
				return opt, requestError("INVALID_ARGUMENT", "timeout out of range", raw)
			}
			if ms < 0 {
				return opt, requestError("INVALID_ARGUMENT", "timeout must not be negative", raw)
			}
			d = time.Duration(ms) * time.Millisecond
		} else if pd, err := time.ParseDuration(raw); err == nil {
			d = pd
		} else {
			return opt, requestError("INVALID_ARGUMENT", "invalid timeout", "milliseconds (3000) or a duration (3s)")
		}
		if d < 0 {
			return opt, requestError("INVALID_ARGUMENT", "timeout must not be negative", raw)
		}
		opt.Timeout = d
	}

	if q.Has("connection_request") {
		switch strings.ToLower(strings.TrimSpace(q.Get("connection_request"))) {
		case "false", "0", "no":
		default:
			opt.ConnectionRequest = true
		}
	}
	return opt, nil
}

// parseTask checks that body is a JSON object with a non-empty "name" and
// returns it trimmed. GenieACS validates the rest.
func parseTask(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, requestError("INVALID_ARGUMENT", "task must be a JSON object", `example: {"name":"reboot"}`)
	}
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, requestError("INVALID_ARGUMENT", "task must be a JSON object", err.Error())
	}
	if strings.TrimSpace(head.Name) == "" {
		return nil, requestError("INVALID_ARGUMENT", "task name is required", `example: {"name":"reboot"}`)
	}
	return json.RawMessage(body), nil
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, apiError(http.StatusRequestEntityTooLarge, model.AppError{
				Code:    "REQUEST_TOO_LARGE",
				Message: fmt.Sprintf("request body too large (>%d bytes)", limit),
				Stage:   "validate_request",
			}, err)
		}
		return nil, requestError("INVALID_ARGUMENT", "failed to read request body", err.Error())
	}
	return data, nil
}

func badDeviceDocument(err error) error {
	return apiError(http.StatusBadGateway, model.AppError{
		Code:    "UPSTREAM_BAD_RESPONSE",
		Message: "device document is not valid JSON",
		Stage:   "decode_device",
	}, err)
}
