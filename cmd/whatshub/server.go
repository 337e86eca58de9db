package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/ratelimit"
	"whatshub/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxWebhookBodyBytes = 1 << 20

type Server struct {
	router    *mux.Router
	cfg       *models.Config
	gateway   *service.Gateway
	scheduler *service.Scheduler
	campaigns *service.CampaignEngine
	limiter   *ratelimit.Limiter
	metrics   *metrics.Registry
	logger    *logrus.Logger
	server    *http.Server
}

func NewServer(cfg *models.Config, gateway *service.Gateway, scheduler *service.Scheduler, campaigns *service.CampaignEngine, limiter *ratelimit.Limiter, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		gateway:   gateway,
		scheduler: scheduler,
		campaigns: campaigns,
		limiter:   limiter,
		metrics:   registry,
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook").Subrouter()
	webhook.HandleFunc("", s.handleWebhookVerification()).Methods(http.MethodGet)
	webhook.HandleFunc("", s.handleWebhook()).Methods(http.MethodPost)

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/messages/schedule", s.handleSchedule()).Methods(http.MethodPost)
	admin.HandleFunc("/messages/{id}/cancel", s.handleCancelSchedule()).Methods(http.MethodPost)
	admin.HandleFunc("/webhooks/{id}/replay", s.handleReplay()).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns/{name}/start", s.handleStartCampaign()).Methods(http.MethodPost)
	admin.HandleFunc("/ratelimit/{account}/reset", s.handleResetRateLimit()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// handleWebhookVerification answers the provider's subscription handshake:
// echo hub.challenge when the verify token matches.
func (s *Server) handleWebhookVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("hub.mode") == "subscribe" && query.Get("hub.verify_token") == s.cfg.VerifyToken {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(query.Get("hub.challenge")))
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		status, reply := s.gateway.HandlePayload(r.Context(), body, r.Header)
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}
}

type scheduleRequest struct {
	To       string    `json:"to"`
	Body     string    `json:"body"`
	Template string    `json:"template"`
	Account  string    `json:"account"`
	SendAt   time.Time `json:"sendAt"`
}

func (s *Server) handleSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.To == "" || req.Account == "" {
			http.Error(w, "to and account are required", http.StatusBadRequest)
			return
		}

		msg := &models.Message{
			To:      req.To,
			Body:    req.Body,
			Account: req.Account,
		}
		if req.Template != "" {
			msg.ContentType = models.ContentTypeTemplate
			msg.Template = req.Template
		} else {
			msg.ContentType = models.ContentTypeText
		}

		if err := s.scheduler.Schedule(r.Context(), msg, req.SendAt); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"id": msg.ID})
	}
}

func (s *Server) handleCancelSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.scheduler.Cancel(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func (s *Server) handleReplay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "invalid webhook log id", http.StatusBadRequest)
			return
		}
		if err := s.gateway.Replay(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "replayed"})
	}
}

func (s *Server) handleStartCampaign() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := s.campaigns.Start(r.Context(), name); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

func (s *Server) handleResetRateLimit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := mux.Vars(r)["account"]
		if err := s.limiter.Reset(r.Context(), account); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeInvalidState:
		status = http.StatusConflict
	case apperrors.ErrCodeRateLimit:
		status = http.StatusTooManyRequests
	}
	http.Error(w, err.Error(), status)
}
