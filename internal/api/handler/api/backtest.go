// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/replay/internal/api/job"
	"github.com/newthinker/replay/internal/api/response"
	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/report"
	"go.uber.org/zap"
)

const backtestTimeout = 5 * time.Minute

// Runner replays batches of backtest requests.
type Runner interface {
	Requests(symbols []string, strategyName string, start, end time.Time) ([]backtest.Request, error)
	Run(ctx context.Context, reqs []backtest.Request) (backtest.Outcomes, error)
	Strategies() []string
}

// BacktestRequest is the request body for starting a backtest job.
type BacktestRequest struct {
	Symbols  []string `json:"symbols"`
	Strategy string   `json:"strategy"`
	Start    string   `json:"start,omitempty"`
	End      string   `json:"end,omitempty"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobs   *job.Store
	runner Runner
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(jobs *job.Store, runner Runner, logger *zap.Logger) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobs:   jobs,
		runner: runner,
		logger: logger,
	}
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	if len(req.Symbols) == 0 || req.Strategy == "" {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigMissing, errors.New("symbols and strategy are required")))
		return
	}
	if !slices.Contains(h.runner.Strategies(), req.Strategy) {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", req.Strategy)))
		return
	}

	// end is inclusive on the wire and exclusive once parsed
	start, end, err := core.ParseDateRange(req.Start, req.End)
	if err != nil {
		response.Fail(w, err)
		return
	}

	reqs, err := h.runner.Requests(req.Symbols, req.Strategy, start, end)
	if err != nil {
		response.Fail(w, err)
		return
	}

	j, err := h.jobs.Create("backtest")
	if err != nil {
		response.Fail(w, err)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runBacktest(j.ID, reqs)
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// runBacktest executes the batch and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, reqs []backtest.Request) {
	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), backtestTimeout)
	defer cancel()
	outcomes, err := h.runner.Run(ctx, reqs)

	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		detail := response.Detail(err)
		h.update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = &core.Error{Code: detail.Code, Message: detail.Message}
			if outcomes != nil {
				j.Result = report.NewBatch(outcomes)
			}
		})
		return
	}

	result := report.NewBatch(outcomes)
	h.logger.Info("backtest job complete",
		zap.String("job_id", jobID),
		zap.Int("runs", len(result.Runs)),
		zap.Int("failures", len(result.Failures)),
	)
	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = result
	})
}

func (h *BacktestHandler) update(jobID string, fn func(*job.Job)) {
	if err := h.jobs.Update(jobID, fn); err != nil {
		h.logger.Error("updating job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Wait blocks until every started job has finished.
func (h *BacktestHandler) Wait() {
	h.wg.Wait()
}

func jobView(j job.Job) map[string]any {
	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"created_at": j.CreatedAt,
	}
	if j.Result != nil {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.ErrorDetail{Code: j.Error.Code, Message: j.Error.Message}
	}
	return resp
}

// Get returns the status of a backtest job.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, jobView(j))
}

// List returns all known jobs, newest first.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	views := make([]map[string]any, len(jobs))
	for i, j := range jobs {
		views[i] = jobView(j)
	}
	response.JSON(w, http.StatusOK, views)
}

// Strategies lists the strategies a job may name.
func (h *BacktestHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.runner.Strategies())
}
