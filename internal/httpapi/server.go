package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/zonegate/server/internal/gate/service"
	"github.com/zonegate/server/internal/gate/store"
)

type Dependencies struct {
	Logger *log.Logger
	Addr   string

	Ingest *service.Ingest

	Directory store.DirectoryStore
	States    store.ZoneStateStore
	Events    store.EventStore
	Denials   store.DenialStore
	Keys      store.KeyStore
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux

	ingest    *service.Ingest
	directory store.DirectoryStore
	states    store.ZoneStateStore
	events    store.EventStore
	denials   store.DenialStore
	keys      store.KeyStore
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:    d.Logger,
		mux:       mux,
		ingest:    d.Ingest,
		directory: d.Directory,
		states:    d.States,
		events:    d.Events,
		denials:   d.Denials,
		keys:      d.Keys,
	}

	mux.HandleFunc("POST /ingest/event", s.handleIngestEvent)

	mux.HandleFunc("POST /admin/zones", s.handleCreateZone)
	mux.HandleFunc("GET /admin/zones", s.handleListZones)
	mux.HandleFunc("GET /admin/zones/{id}", s.handleGetZone)
	mux.HandleFunc("DELETE /admin/zones/{id}", s.handleDeleteZone)

	mux.HandleFunc("POST /admin/users", s.handleCreateUser)
	mux.HandleFunc("GET /admin/users", s.handleListUsers)
	mux.HandleFunc("GET /admin/users/{id}", s.handleGetUser)
	mux.HandleFunc("DELETE /admin/users/{id}", s.handleDeleteUser)

	mux.HandleFunc("POST /admin/checkpoints", s.handleCreateCheckpoint)
	mux.HandleFunc("GET /admin/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("GET /admin/checkpoints/{id}", s.handleGetCheckpoint)
	mux.HandleFunc("DELETE /admin/checkpoints/{id}", s.handleDeleteCheckpoint)

	mux.HandleFunc("POST /admin/access-rules", s.handleCreateAccessRule)
	mux.HandleFunc("GET /admin/access-rules", s.handleListAccessRules)
	mux.HandleFunc("GET /admin/access-rules/{id}", s.handleGetAccessRule)
	mux.HandleFunc("DELETE /admin/access-rules/{id}", s.handleDeleteAccessRule)

	mux.HandleFunc("PUT /admin/checkpoints/{code}/key", s.handlePutCheckpointKey)
	mux.HandleFunc("PUT /admin/issuers/{code}/key", s.handlePutIssuerKey)

	mux.HandleFunc("GET /reports/events", s.handleReportEvents)
	mux.HandleFunc("GET /reports/denials", s.handleReportDenials)
	mux.HandleFunc("GET /reports/user-states", s.handleReportUserStates)

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
