// Package api is the ops surface of the pipeline: manual pass triggers,
// manual campaign links, item requeue and health. It is an operator tool,
// not a public API; content intake happens through the queue store.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/httputil"
	"github.com/blkoutuk/comms-pipeline/internal/queue"
)

// PassRunner triggers the scheduled passes on demand. *queue.Manager
// implements it.
type PassRunner interface {
	RunPublishPass(ctx context.Context) (*queue.PassSummary, error)
	RunMetricsPass(ctx context.Context) (*queue.SyncSummary, error)
}

// ItemAdmin covers the operator actions on content items.
type ItemAdmin interface {
	Enqueue(ctx context.Context, item *domain.ContentItem) error
	Requeue(ctx context.Context, itemID uuid.UUID) (bool, error)
}

// Linker writes manual campaign links.
type Linker interface {
	ManualLink(ctx context.Context, unitID, externalCampaignID string) error
}

// Server holds the handler dependencies.
type Server struct {
	runner PassRunner
	items  ItemAdmin
	linker Linker
	db     *sql.DB
	cache  *redis.Client
}

// NewServer creates the ops API server.
func NewServer(runner PassRunner, items ItemAdmin, linker Linker, db *sql.DB, cache *redis.Client) *Server {
	return &Server{runner: runner, items: items, linker: linker, db: db, cache: cache}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/passes/publish", s.handlePublishPass)
		r.Post("/passes/metrics", s.handleMetricsPass)
		r.Post("/items", s.handleEnqueue)
		r.Post("/items/{id}/requeue", s.handleRequeue)
		r.Post("/links", s.handleManualLink)
	})
	return r
}

func (s *Server) handlePublishPass(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.RunPublishPass(r.Context())
	if err != nil {
		if errors.Is(err, queue.ErrPassRunning) {
			httputil.Error(w, http.StatusConflict, "publish pass already running")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

func (s *Server) handleMetricsPass(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.RunMetricsPass(r.Context())
	if err != nil {
		if errors.Is(err, queue.ErrPassRunning) {
			httputil.Error(w, http.StatusConflict, "metrics pass already running")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}

type enqueueRequest struct {
	Platform    domain.Platform `json:"platform"`
	Body        string          `json:"body"`
	Tags        []string        `json:"tags"`
	MediaURL    string          `json:"media_url"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !req.Platform.Valid() {
		httputil.BadRequest(w, "unknown platform")
		return
	}
	if req.Body == "" {
		httputil.BadRequest(w, "body is required")
		return
	}

	item := &domain.ContentItem{
		Platform:    req.Platform,
		Body:        req.Body,
		Tags:        req.Tags,
		MediaURL:    req.MediaURL,
		ScheduledAt: req.ScheduledAt,
	}
	if err := s.items.Enqueue(r.Context(), item); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, map[string]string{"id": item.ID.String()})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid item ID")
		return
	}

	ok, err := s.items.Requeue(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !ok {
		httputil.NotFound(w, "no failed item with that ID")
		return
	}
	httputil.OK(w, map[string]string{"status": "queued"})
}

type manualLinkRequest struct {
	UnitID             string `json:"unit_id"`
	ExternalCampaignID string `json:"external_campaign_id"`
}

func (s *Server) handleManualLink(w http.ResponseWriter, r *http.Request) {
	var req manualLinkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UnitID == "" || req.ExternalCampaignID == "" {
		httputil.BadRequest(w, "unit_id and external_campaign_id are required")
		return
	}

	if err := s.linker.ManualLink(r.Context(), req.UnitID, req.ExternalCampaignID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"method": string(domain.MatchManual)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	health := map[string]string{"status": "ok", "database": "ok", "redis": "disabled"}
	status := http.StatusOK

	if err := s.db.PingContext(ctx); err != nil {
		health["status"] = "degraded"
		health["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if s.cache != nil {
		health["redis"] = "ok"
		if err := s.cache.Ping(ctx).Err(); err != nil {
			// Redis is an optimization, not a dependency.
			health["redis"] = "unreachable"
		}
	}
	httputil.JSON(w, status, health)
}
