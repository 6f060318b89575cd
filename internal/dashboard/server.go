package dashboard

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/callgate/callgate/internal/access"
	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/dashboard/middleware"
	"github.com/callgate/callgate/internal/database"
	"github.com/callgate/callgate/internal/database/models"
)

// Server is the dashboard's HTTP surface: the websocket hub plus the REST
// endpoints the operator console reads, routed with chi.
type Server struct {
	hub        *Hub
	registry   *agent.Registry
	access     *access.Store
	calls      database.CallRepository
	logger     *slog.Logger
	router     chi.Router
	tlsEnabled bool
}

// Options bundles the Server's dependencies.
type Options struct {
	Hub         *Hub
	Registry    *agent.Registry
	Access      *access.Store
	Calls       database.CallRepository
	CORSOrigins []string
	TLSEnabled  bool
}

// NewServer builds the dashboard's chi router with the full middleware
// stack (RequestID, RealIP, CORS, StructuredLogger, Recoverer,
// SecurityHeaders, RateLimit), then mounts the websocket and REST routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	s := &Server{
		hub:        opts.Hub,
		registry:   opts.Registry,
		access:     opts.Access,
		calls:      opts.Calls,
		logger:     logger.With("component", "dashboard"),
		tlsEnabled: opts.TLSEnabled,
	}

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(opts.TLSEnabled))
	r.Use(middleware.RateLimit(limiter))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/{id}/cancel", s.handleCancelTask)
	})

	r.Route("/blacklist", func(r chi.Router) {
		r.Get("/", s.handleListBlacklist)
		r.Post("/", s.handleAddBlacklist)
		r.Delete("/{caller}", s.handleDeleteBlacklist)
	})

	r.Route("/whitelist", func(r chi.Router) {
		r.Get("/", s.handleListWhitelist)
		r.Post("/", s.handleAddWhitelist)
		r.Delete("/{caller}", s.handleDeleteWhitelist)
	})

	r.Route("/calls", func(r chi.Router) {
		r.Get("/", s.handleListCalls)
		r.Get("/{id}", s.handleGetCall)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

type agentSummary struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	descs := s.registry.List()
	out := make([]agentSummary, 0, len(descs))
	for _, d := range descs {
		if d.IsGate() {
			continue
		}
		out = append(out, agentSummary{Name: d.Name, DisplayName: d.DisplayName, Description: d.Description, Keywords: d.Keywords})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Tasks())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.hub.CancelTask(id) {
		writeError(w, http.StatusNotFound, "no active task with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type callerIDRequest struct {
	CallerID string `json:"caller_id"`
	Reason   string `json:"reason,omitempty"`
	Note     string `json:"note,omitempty"`
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.access.ListBlacklist(r.Context())
	if err != nil {
		s.logger.Error("listing blacklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list blacklist")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req callerIDRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.CallerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}
	if err := s.access.AddBlacklist(r.Context(), req.CallerID, req.Reason); err != nil {
		s.logger.Error("adding blacklist entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add blacklist entry")
		return
	}
	s.hub.Publish(EventBlacklistUpdated, nil)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleDeleteBlacklist(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller")
	if err := s.access.RemoveBlacklist(r.Context(), caller); err != nil {
		s.logger.Error("removing blacklist entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove blacklist entry")
		return
	}
	s.hub.Publish(EventBlacklistUpdated, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.access.ListWhitelist(r.Context())
	if err != nil {
		s.logger.Error("listing whitelist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list whitelist")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req callerIDRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.CallerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}
	if err := s.access.AddWhitelist(r.Context(), req.CallerID, req.Note); err != nil {
		s.logger.Error("adding whitelist entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add whitelist entry")
		return
	}
	s.hub.Publish(EventWhitelistUpdated, nil)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleDeleteWhitelist(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller")
	if err := s.access.RemoveWhitelist(r.Context(), caller); err != nil {
		s.logger.Error("removing whitelist entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove whitelist entry")
		return
	}
	s.hub.Publish(EventWhitelistUpdated, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	page, msg := parseCallsPage(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	filter := database.CallListFilter{
		Limit:     page.Limit,
		Offset:    page.Offset,
		Search:    r.URL.Query().Get("search"),
		Status:    r.URL.Query().Get("status"),
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
	}
	calls, total, err := s.calls.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing calls", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	writeJSON(w, http.StatusOK, PaginatedCalls{Items: summarizeCalls(calls), Total: total, Limit: page.Limit, Offset: page.Offset})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	call, err := s.calls.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("getting call", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to get call")
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// callSummary omits the transcript and logs fields from the list view;
// GET /calls/{id} returns the full models.Call including both.
type callSummary struct {
	ID           int64      `json:"id"`
	CallID       string     `json:"call_id"`
	CallerIDName string     `json:"caller_id_name"`
	CallerIDNum  string     `json:"caller_id_num"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationS    *int       `json:"duration_s,omitempty"`
	Unlocked     bool       `json:"unlocked"`
	FinalAgent   string     `json:"final_agent"`
	CostCents    float64    `json:"cost_cents"`
	HangupCause  string     `json:"hangup_cause"`
}

func summarizeCalls(calls []models.Call) []callSummary {
	out := make([]callSummary, 0, len(calls))
	for _, c := range calls {
		out = append(out, callSummary{
			ID: c.ID, CallID: c.CallID, CallerIDName: c.CallerIDName, CallerIDNum: c.CallerIDNum,
			StartedAt: c.StartedAt, EndedAt: c.EndedAt, DurationS: c.DurationS, Unlocked: c.Unlocked,
			FinalAgent: c.FinalAgent, CostCents: c.CostCents, HangupCause: c.HangupCause,
		})
	}
	return out
}
