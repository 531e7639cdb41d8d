package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/John-Robertt/genieacs-gateway/internal/genieacs"
	"github.com/John-Robertt/genieacs-gateway/internal/logging"
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
)

// Upstream is the subset of the GenieACS NBI the gateway forwards to.
// *genieacs.Client implements it.
type Upstream interface {
	ListDevices(ctx context.Context, query string) (json.RawMessage, error)
	FindDevice(ctx context.Context, id string) (json.RawMessage, error)
	DeleteDevice(ctx context.Context, id string) error
	AddTask(ctx context.Context, id string, task json.RawMessage, opt genieacs.TaskOptions) (genieacs.TaskResult, error)
}

var _ Upstream = (*genieacs.Client)(nil)

func NewMux(up Upstream, dict *mapping.Dictionary, opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	h := &deviceHandler{
		up:   up,
		dict: dict,
		opt:  opt,
		log:  logging.OrNop(opt.Logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", handleMetrics)
	mux.HandleFunc("GET /devices", h.handleListDevices)
	mux.HandleFunc("GET /devices/{device_id}", h.handleGetDevice)
	mux.HandleFunc("GET /devices/{device_id}/all_parameters", h.handleAllParameters)
	mux.HandleFunc("GET /devices/{device_id}/select", h.handleSelect)
	mux.HandleFunc("DELETE /devices/{device_id}", h.handleDeleteDevice)
	mux.HandleFunc("POST /devices/{device_id}/tasks", h.handleAddTask)
	mux.HandleFunc("POST /parameters/batch", h.handleBatch)
	return mux
}
