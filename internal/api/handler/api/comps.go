// internal/api/handler/api/comps.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/api/job"
	"github.com/newthinker/comps/internal/api/response"
	"github.com/newthinker/comps/internal/app"
	"github.com/newthinker/comps/internal/core"
)

const (
	jobTypeComps = "comps"
	jobTimeout   = 5 * time.Minute
)

// CompsApp defines the interface needed from app.App.
type CompsApp interface {
	Analyze(ctx context.Context, symbols []string, req app.Request) ([]*core.CompanyAnalysis, error)
	Summary(ctx context.Context, symbols []string, req app.Request) (*app.Summary, error)
	PeerSet(name string) ([]string, bool)
}

// JobMetrics receives the active job count.
type JobMetrics interface {
	SetJobsActive(count int)
}

// CompsRequest is the request body for starting a comps job.
type CompsRequest struct {
	Symbols       []string `json:"symbols"`
	PeerSet       string   `json:"peer_set,omitempty"`
	Period        string   `json:"period,omitempty"`
	PriorPeriod   string   `json:"prior_period,omitempty"`
	CashTreatment string   `json:"cash_treatment,omitempty"`
	DebtMode      string   `json:"debt_mode,omitempty"`
	IncludeLeases *bool    `json:"include_leases,omitempty"`
	SubtractEMI   *bool    `json:"subtract_equity_method_investments,omitempty"`
	Archive       bool     `json:"archive,omitempty"`
}

// CompsHandler handles comps API requests.
type CompsHandler struct {
	app     CompsApp
	jobs    *job.Store
	metrics JobMetrics
	logger  *zap.Logger
}

// NewCompsHandler creates a new comps handler. metrics and logger may be nil.
func NewCompsHandler(app CompsApp, jobs *job.Store, metrics JobMetrics, logger *zap.Logger) *CompsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompsHandler{app: app, jobs: jobs, metrics: metrics, logger: logger}
}

// Analyze runs a synchronous comps analysis.
// GET /api/v1/comps?symbols=AAPL,MSFT&period=ltm&debt_mode=split
func (h *CompsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.requestFromQuery(r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	appReq, err := req.toAppRequest()
	if err != nil {
		response.Fail(w, err)
		return
	}

	results, err := h.app.Analyze(r.Context(), req.Symbols, appReq)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"companies": results,
		"count":     len(results),
	})
}

// Summary returns peer statistics for a symbol set.
// GET /api/v1/comps/summary?symbols=AAPL,MSFT
func (h *CompsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	req, err := h.requestFromQuery(r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	appReq, err := req.toAppRequest()
	if err != nil {
		response.Fail(w, err)
		return
	}

	summary, err := h.app.Summary(r.Context(), req.Symbols, appReq)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// CreateJob starts an asynchronous comps analysis.
// POST /api/v1/comps/jobs
func (h *CompsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CompsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}
	if err := h.resolvePeerSet(&req); err != nil {
		response.Fail(w, err)
		return
	}
	if len(req.Symbols) == 0 {
		response.Fail(w, core.ErrNoSymbols)
		return
	}
	appReq, err := req.toAppRequest()
	if err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Create(jobTypeComps, req.Symbols...)

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	h.updateActive()
	go h.runJob(jobID, req.Symbols, appReq)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// runJob executes the analysis and updates job status.
func (h *CompsHandler) runJob(jobID string, symbols []string, req app.Request) {
	defer h.updateActive()

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	results, err := h.app.Analyze(ctx, symbols, req)

	if err != nil {
		h.logger.Warn("comps job failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = response.AsError(err)
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = results
	})
}

// GetJob returns the status of a comps job.
// GET /api/v1/comps/jobs/{id}
func (h *CompsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
		"symbols":  j.Symbols,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}

	response.JSON(w, http.StatusOK, resp)
}

// ListJobs returns every live job without results.
// GET /api/v1/comps/jobs
func (h *CompsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, map[string]any{
			"job_id":     j.ID,
			"status":     j.Status,
			"symbols":    j.Symbols,
			"created_at": j.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *CompsHandler) updateActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(h.jobs.Active())
	}
}

// resolvePeerSet appends the named peer set's symbols to the request.
func (h *CompsHandler) resolvePeerSet(req *CompsRequest) error {
	if req.PeerSet == "" {
		return nil
	}
	symbols, ok := h.app.PeerSet(req.PeerSet)
	if !ok {
		return core.WrapError(core.ErrPeerSetUnknown, fmt.Errorf("%q", req.PeerSet))
	}
	req.Symbols = append(req.Symbols, symbols...)
	return nil
}

func (h *CompsHandler) requestFromQuery(r *http.Request) (CompsRequest, error) {
	q := r.URL.Query()
	req := CompsRequest{
		Symbols:       q["symbols"],
		PeerSet:       q.Get("peer_set"),
		Period:        q.Get("period"),
		PriorPeriod:   q.Get("prior_period"),
		CashTreatment: q.Get("cash_treatment"),
		DebtMode:      q.Get("debt_mode"),
	}
	for key, dst := range map[string]**bool{
		"include_leases":                     &req.IncludeLeases,
		"subtract_equity_method_investments": &req.SubtractEMI,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		var v bool
		switch strings.ToLower(raw) {
		case "1", "true", "yes":
			v = true
		case "0", "false", "no":
		default:
			return req, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("%s must be a boolean, got %q", key, raw))
		}
		*dst = &v
	}
	if err := h.resolvePeerSet(&req); err != nil {
		return req, err
	}
	if len(req.Symbols) == 0 {
		return req, core.ErrNoSymbols
	}
	return req, nil
}

// toAppRequest builds the EV policy override when any policy field is set.
func (req CompsRequest) toAppRequest() (app.Request, error) {
	out := app.Request{
		Period:      req.Period,
		PriorPeriod: req.PriorPeriod,
		Archive:     req.Archive,
	}
	if req.CashTreatment == "" && req.DebtMode == "" && req.IncludeLeases == nil && req.SubtractEMI == nil {
		return out, nil
	}

	policy := core.DefaultEVPolicy()
	if req.CashTreatment != "" {
		policy.CashTreatment = core.CashTreatment(req.CashTreatment)
	}
	if req.DebtMode != "" {
		policy.DebtMode = core.DebtMode(req.DebtMode)
	}
	if req.IncludeLeases != nil {
		policy.IncludeLeases = *req.IncludeLeases
	}
	if req.SubtractEMI != nil {
		policy.SubtractEquityMethodInvestments = *req.SubtractEMI
	}
	if err := policy.Validate(); err != nil {
		return out, err
	}
	out.Policy = &policy
	return out, nil
}
