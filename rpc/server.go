package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"invoicechain/core/events"
	"invoicechain/native/invoice"
	"invoicechain/native/registry"
)

const requestIDHeader = "X-Request-Id"

// Server exposes the settlement engines over HTTP. All write endpoints carry
// the acting address in the request body; the server performs no signature
// verification and is meant to sit behind an authenticating gateway.
type Server struct {
	invoices   *invoice.Engine
	factory    *registry.Engine
	buffer     *events.MemoryEmitter
	log        *slog.Logger
	metrics    *metricsRegistry
	httpServer *http.Server
}

// NewServer wires the engines into an HTTP server listening on addr.
func NewServer(addr string, invoices *invoice.Engine, factory *registry.Engine, buffer *events.MemoryEmitter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		invoices: invoices,
		factory:  factory,
		buffer:   buffer,
		log:      log,
		metrics:  newMetricsRegistry(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Router builds the chi route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.logMiddleware)
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/factory", func(r chi.Router) {
			r.Post("/implementations", s.handleAddImplementation)
			r.Get("/implementations/{kind}", s.handleCurrentVersion)
			r.Post("/invoices", s.handleCreate)
			r.Post("/invoices/deterministic", s.handleCreateDeterministic)
			r.Post("/invoices/predict", s.handlePredict)
			r.Get("/invoices/count", s.handleInvoiceCount)
			r.Get("/invoices/{id}", s.handleInvoiceAddress)
			r.Post("/resolution-rate", s.handleUpdateResolutionRate)
			r.Get("/resolution-rate/{resolver}", s.handleResolutionRate)
		})
		r.Route("/invoices/{addr}", func(r chi.Router) {
			r.Get("/", s.handleGetInvoice)
			r.Get("/held", s.handleHeld)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/release", s.handleRelease)
			r.Post("/milestones", s.handleAddMilestones)
			r.Post("/verify", s.handleVerify)
			r.Post("/lock", s.handleLock)
			r.Post("/resolve", s.handleResolve)
			r.Post("/rule", s.handleRule)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/client", s.handleUpdateClient)
			r.Post("/provider", s.handleUpdateProvider)
			r.Post("/client-receiver", s.handleUpdateClientReceiver)
			r.Post("/provider-receiver", s.handleUpdateProviderReceiver)
		})
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.log.Info("rpc listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start).String(),
			"requestId", recorder.Header().Get(requestIDHeader),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
