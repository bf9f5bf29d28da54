// Package api fronts the board core for the operations console.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"fulfillment-board/internal/board"
	"fulfillment-board/internal/config"
	"fulfillment-board/internal/countdown"
	"fulfillment-board/internal/dragdrop"
	"fulfillment-board/internal/export"
	"fulfillment-board/internal/failedlist"
	"fulfillment-board/internal/models"
	"fulfillment-board/internal/orderservice"
	"fulfillment-board/internal/ratelimit"
	"fulfillment-board/internal/retrylock"
	"fulfillment-board/internal/telemetry"
)

// AuditLog records transition outcomes. Optional; a nil log disables the
// history endpoint.
type AuditLog interface {
	AppendTransition(ctx context.Context, a models.TransitionAudit) error
	History(ctx context.Context, orderID string, limit int) ([]models.TransitionAudit, error)
}

// Server wires HTTP handlers for the console API.
type Server struct {
	cfg      config.Config
	cache    *board.Cache
	engine   *dragdrop.Engine
	list     *failedlist.Cache
	svc      *orderservice.Client
	exporter *export.Service
	watcher  *countdown.Watcher
	limiter  *ratelimit.RetryLimiter
	audit    AuditLog

	mu      sync.Mutex
	notices []dragdrop.Notification
}

// New constructs the API server. The drag engine must be built with
// s.Notify as its notifier so async confirmation outcomes reach the console.
func New(cfg config.Config, cache *board.Cache, list *failedlist.Cache, svc *orderservice.Client,
	exporter *export.Service, watcher *countdown.Watcher, limiter *ratelimit.RetryLimiter, audit AuditLog) *Server {
	s := &Server{
		cfg:      cfg,
		cache:    cache,
		list:     list,
		svc:      svc,
		exporter: exporter,
		watcher:  watcher,
		limiter:  limiter,
		audit:    audit,
	}
	s.engine = dragdrop.New(cache, svc, s.Notify)
	return s
}

// Engine exposes the drag engine for wiring and tests.
func (s *Server) Engine() *dragdrop.Engine {
	return s.engine
}

// Notify buffers actor-facing notifications until the console polls them
// and mirrors confirmation outcomes into the audit trail.
func (s *Server) Notify(n dragdrop.Notification) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > 100 {
		s.notices = s.notices[len(s.notices)-100:]
	}
	s.mu.Unlock()

	if s.audit == nil {
		return
	}
	if n.Kind == dragdrop.NoticeConfirmed || n.Kind == dragdrop.NoticeRolledBack {
		o, _ := s.cache.Get(n.OrderID)
		detail := ""
		if n.Err != nil {
			detail = n.Err.Error()
		}
		if err := s.audit.AppendTransition(context.Background(), models.TransitionAudit{
			OrderID:  n.OrderID,
			ToStatus: o.Status,
			Outcome:  string(n.Kind),
			Detail:   detail,
		}); err != nil {
			log.Printf("audit: append %s for %s: %v", n.Kind, n.OrderID, err)
		}
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Get("/board", s.handleBoard)
	r.Post("/board/refresh", s.handleBoardRefresh)
	r.Post("/board/orders/{id}/move", s.handleMove)
	r.Get("/board/orders/{id}/history", s.handleHistory)
	r.Get("/board/notifications", s.handleNotifications)

	r.Get("/failed-orders", s.handleFailedList)
	r.Post("/failed-orders/refresh", s.handleFailedRefresh)
	r.Post("/failed-orders/search", s.handleFailedSearch)
	r.Post("/failed-orders/{id}/retry", s.handleRetry)
	r.Get("/failed-orders/export", s.handleExport)

	return r
}

// cardView is one board card plus its derived lock state.
type cardView struct {
	models.Order
	Lock         *retrylock.Lock    `json:"lock,omitempty"`
	Progress     float64            `json:"progress,omitempty"`
	ConfirmState board.ConfirmState `json:"confirm_state,omitempty"`
}

type boardResponse struct {
	Columns map[string][]cardView `json:"columns"`
}

func (s *Server) boardView() boardResponse {
	now := time.Now()
	resp := boardResponse{Columns: make(map[string][]cardView)}
	for status, orders := range s.cache.Snapshot() {
		cards := make([]cardView, 0, len(orders))
		for _, o := range orders {
			card := cardView{Order: o}
			if o.RetryState != nil {
				lock := retrylock.Evaluate(now, o.RetryState)
				card.Lock = &lock
				card.Progress = retrylock.Progress(o.RetryState)
			}
			if cs, ok := s.cache.ConfirmStateOf(o.ID); ok {
				card.ConfirmState = cs
			}
			cards = append(cards, card)
		}
		resp.Columns[status] = cards
	}
	return resp
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.boardView())
}

func (s *Server) handleBoardRefresh(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		date = parsed
	}
	status := r.URL.Query().Get("status")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := s.svc.FetchOrders(r.Context(), date, status, page, limit)
	if err != nil {
		http.Error(w, "board fetch failed", http.StatusBadGateway)
		return
	}
	s.cache.Load(orders)
	s.watcher.Wake()
	writeJSON(w, http.StatusOK, s.boardView())
}

type moveRequest struct {
	TargetKind   string `json:"target_kind"` // column | card
	TargetStatus string `json:"target_status,omitempty"`
	CardID       string `json:"card_id,omitempty"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	target := dragdrop.DropTarget{
		Kind:   dragdrop.TargetKind(req.TargetKind),
		Status: req.TargetStatus,
		CardID: req.CardID,
	}
	if target.Kind != dragdrop.TargetColumn && target.Kind != dragdrop.TargetCard {
		http.Error(w, "target_kind must be column or card", http.StatusBadRequest)
		return
	}

	from, _ := s.cache.Get(id)
	if err := s.engine.BeginDrag(id); err != nil {
		s.writeMoveError(w, err)
		return
	}
	// The confirmation request outlives this handler; detach it from the
	// request context so returning early does not cancel the persist.
	updated, err := s.engine.Drop(context.WithoutCancel(r.Context()), id, target)
	if err != nil {
		s.writeMoveError(w, err)
		return
	}
	s.watcher.Wake()

	if s.audit != nil && updated.Status != from.Status {
		if err := s.audit.AppendTransition(r.Context(), models.TransitionAudit{
			OrderID:    id,
			FromStatus: from.Status,
			ToStatus:   updated.Status,
			Outcome:    "applied",
			Detail:     fmt.Sprintf("target_kind=%s", req.TargetKind),
		}); err != nil {
			log.Printf("audit: append applied for %s: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) writeMoveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, board.ErrLocked):
		http.Error(w, "order is retry-locked", http.StatusLocked)
	case errors.Is(err, board.ErrNotFound):
		http.Error(w, "order not on board", http.StatusNotFound)
	case errors.Is(err, board.ErrUnknownStatus):
		http.Error(w, "unknown target status", http.StatusBadRequest)
	case errors.Is(err, dragdrop.ErrDragActive), errors.Is(err, dragdrop.ErrNoDrag):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "history not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.audit.History(r.Context(), id, limit)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := s.notices
	s.notices = nil
	s.mu.Unlock()

	type notice struct {
		OrderID string `json:"order_id"`
		Kind    string `json:"kind"`
		Detail  string `json:"detail,omitempty"`
	}
	list := make([]notice, 0, len(out))
	for _, n := range out {
		item := notice{OrderID: n.OrderID, Kind: string(n.Kind)}
		if n.Err != nil {
			item.Detail = n.Err.Error()
		}
		list = append(list, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleFailedList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.list.Snapshot())
}

func (s *Server) handleFailedRefresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var start, end time.Time
	if v := q.Get("startDate"); v != "" {
		start, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("endDate"); v != "" {
		end, _ = time.Parse("2006-01-02", v)
	}
	if err := s.list.SetFilters(r.Context(), q.Get("status"), q.Get("storeId"), start, end); err != nil {
		http.Error(w, "list fetch failed", http.StatusBadGateway)
		return
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		if err := s.list.SetPage(r.Context(), page); err != nil {
			http.Error(w, "list fetch failed", http.StatusBadGateway)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.list.Snapshot())
}

type searchRequest struct {
	Term string `json:"term"`
}

func (s *Server) handleFailedSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	// Debounced: the fetch fires once input settles, so answer 202 with the
	// still-current snapshot.
	s.list.Search(context.WithoutCancel(r.Context()), req.Term)
	writeJSON(w, http.StatusAccepted, s.list.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	storeRef := r.Header.Get("X-Store-Ref")
	if rec, ok := s.list.Get(id); ok {
		storeRef = rec.StoreRef
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), storeRef)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RetryRateLimited.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	if err := s.svc.TriggerRetry(r.Context(), id); err != nil {
		if errors.Is(err, orderservice.ErrRetryRejected) {
			// Local status stays as-is; the next fetch or push event settles it.
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "retry trigger failed", http.StatusBadGateway)
		return
	}
	telemetry.RetryTriggers.Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry requested"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, err := s.exporter.Download(r.Context(), s.list.Query())
	if err != nil {
		http.Error(w, "export failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
