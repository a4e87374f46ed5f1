package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

const defaultListLimit = 50

// SyncService is the part of the dispatcher the API exposes. *tasks.Dispatcher satisfies it.
type SyncService interface {
	RequestSync(ctx context.Context, userID string, platforms []models.Platform) ([]tasks.PlatformResult, error)
	GetStatus(ctx context.Context, taskID string) (*tasks.Status, error)
	ListTasks(ctx context.Context, userID string, limit int) ([]tasks.Status, error)
	Revoke(ctx context.Context, taskID string) (*tasks.Status, error)
}

// Sweeper runs one sync round over every active user. *tasks.Scheduler satisfies it.
type Sweeper interface {
	RunOnce(ctx context.Context) (*tasks.ScheduleReport, error)
}

// API serves the task endpoints.
type API struct {
	sync    SyncService
	sweeper Sweeper
	logger  *log.Logger
}

// APIOption configures optional endpoints of an [API].
type APIOption func(*API)

// WithSweeper mounts POST /sync, which requests a sync for every active user.
func WithSweeper(s Sweeper) APIOption {
	return func(a *API) { a.sweeper = s }
}

func NewAPI(sync SyncService, logger *log.Logger, opts ...APIOption) *API {
	a := &API{sync: sync, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts the task endpoints on r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/users/{id}/sync", http.HandlerFunc(a.requestSync))
	r.Handle(http.MethodGet, "/users/{id}/tasks", http.HandlerFunc(a.listTasks))
	r.Handle(http.MethodGet, "/tasks/{id}", http.HandlerFunc(a.getTask))
	r.Handle(http.MethodDelete, "/tasks/{id}", http.HandlerFunc(a.revokeTask))
	if a.sweeper != nil {
		r.Handle(http.MethodPost, "/sync", http.HandlerFunc(a.syncAll))
	}
}

// NewHandler assembles the full HTTP surface: task endpoints, health, and metrics.
func NewHandler(sync SyncService, health *HealthHandler, metrics http.Handler, logger *log.Logger, opts ...APIOption) http.Handler {
	r := NewChiRouter()
	r.Use(Defaults(logger)...)
	NewAPI(sync, logger, opts...).Register(r)
	if health != nil {
		r.Handle(http.MethodGet, "/health", health)
	}
	if metrics != nil {
		r.Handle(http.MethodGet, "/metrics", metrics)
	}
	return r
}

type syncRequest struct {
	Platforms []string `json:"platforms"`
}

type platformResponse struct {
	Platform models.Platform `json:"platform"`
	TaskID   string          `json:"task_id,omitempty"`
	Created  bool            `json:"created"`
	Error    *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Kind    shared.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type taskResponse struct {
	TaskID          string           `json:"task_id"`
	UserID          string           `json:"user_id"`
	Platform        models.Platform  `json:"platform"`
	State           models.TaskState `json:"state"`
	Attempts        int              `json:"attempts"`
	Error           *errorBody       `json:"error,omitempty"`
	ResultRef       string           `json:"result_ref,omitempty"`
	EligibleAt      time.Time        `json:"eligible_at"`
	RevokeRequested bool             `json:"revoke_requested"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

func toTaskResponse(s tasks.Status) taskResponse {
	resp := taskResponse{
		TaskID:          s.TaskID,
		UserID:          s.UserID,
		Platform:        s.Platform,
		State:           s.State,
		Attempts:        s.Attempts,
		ResultRef:       s.ResultRef,
		EligibleAt:      s.EligibleAt,
		RevokeRequested: s.RevokeRequested,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		FinishedAt:      s.FinishedAt,
	}
	if s.LastError != nil {
		resp.Error = &errorBody{Kind: s.LastError.Kind, Message: s.LastError.Message}
	}
	return resp
}

func (a *API) requestSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequest
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, shared.KindNone, "unreadable body")
		return
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			writeError(w, http.StatusBadRequest, shared.KindNone, "body must be a JSON object")
			return
		}
	}

	platforms, err := models.ParsePlatforms(body.Platforms)
	if err != nil {
		writeError(w, http.StatusBadRequest, shared.KindNone, err.Error())
		return
	}

	results, err := a.sync.RequestSync(r.Context(), chi.URLParam(r, "id"), platforms)
	if err != nil {
		a.fail(w, err)
		return
	}

	out := make([]platformResponse, len(results))
	for i, res := range results {
		out[i] = platformResponse{Platform: res.Platform, TaskID: res.TaskID, Created: res.Created}
		if res.Err != nil {
			out[i].Error = &errorBody{Kind: shared.KindOf(res.Err), Message: shared.MessageOf(res.Err)}
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"tasks": out})
}

type sweepError struct {
	UserID   string          `json:"user_id"`
	Platform models.Platform `json:"platform,omitempty"`
	Error    errorBody       `json:"error"`
}

type sweepResponse struct {
	Users     int          `json:"users"`
	Requested int          `json:"requested"`
	Skipped   int          `json:"skipped"`
	Errors    []sweepError `json:"errors"`
}

func (a *API) syncAll(w http.ResponseWriter, r *http.Request) {
	report, err := a.sweeper.RunOnce(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}

	resp := sweepResponse{
		Users:     report.Users,
		Requested: report.Requested,
		Skipped:   report.Skipped,
		Errors:    make([]sweepError, len(report.Errors)),
	}
	for i, ue := range report.Errors {
		resp.Errors[i] = sweepError{
			UserID:   ue.UserID,
			Platform: ue.Platform,
			Error:    errorBody{Kind: shared.KindOf(ue.Err), Message: shared.MessageOf(ue.Err)},
		}
	}
	a.logger.Info("sync requested for all users", "users", report.Users, "requested", report.Requested,
		"skipped", report.Skipped, "errors", len(report.Errors))
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	s, err := a.sync.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(*s))
}

func (a *API) revokeTask(w http.ResponseWriter, r *http.Request) {
	s, err := a.sync.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toTaskResponse(*s))
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, shared.KindNone, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := a.sync.ListTasks(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]taskResponse, len(list))
	for i, s := range list {
		out[i] = toTaskResponse(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// fail maps err to a status code and a client-safe body.
func (a *API) fail(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	switch {
	case errors.Is(err, shared.ErrTaskNotFound), errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, kind, "not found")
	case kind == shared.KindInvalidUser:
		writeError(w, http.StatusNotFound, kind, shared.MessageOf(err))
	case kind == shared.KindNoCredentials:
		writeError(w, http.StatusUnprocessableEntity, kind, shared.MessageOf(err))
	case errors.Is(err, shared.ErrUnknownPlatform), errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, kind, err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, shared.KindInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind shared.ErrorKind, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}
