// Package muapi is the control plane's HTTP API surface (spec §6): the
// webhook ingress for every channel adapter plus the admin/control-plane,
// issue, forum, event, and session-flash routes. Grounded on the teacher's
// pkg/api Server — a struct of optional collaborators wired post-construction
// via Set* methods, validated once with ValidateWiring before Start.
package muapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/muissue"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/muoutbox"
	"github.com/femtomc/mu-controlplane/pkg/mupipeline"
	"github.com/femtomc/mu-controlplane/pkg/mureload"
)

// Pipeline is the subset of *mupipeline.Pipeline the API depends on.
type Pipeline interface {
	HandleInbound(ctx context.Context, env mucore.InboundEnvelope) mupipeline.Result
}

// Server is the HTTP API server for the control plane.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	logger     *slog.Logger
	clock      func() int64

	pipeline Pipeline
	reload   *mureload.Supervisor
	adapters map[string]muadapter.Adapter
	ids      mucore.IDFactory

	issues muissue.Store
	forum  muissue.Forum

	events *mujournal.EventJournal
	flash  *mujournal.SessionFlashJournal
	outbox *muoutbox.Dispatcher
}

// NewServer constructs a Server with routes registered. Collaborators are
// wired afterward via Set* methods; call ValidateWiring before Start.
func NewServer(clock func() int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	s := &Server{
		echo:     e,
		logger:   logger,
		clock:    clock,
		adapters: make(map[string]muadapter.Adapter),
		ids:      mucore.UUIDFactory{},
	}
	s.setupRoutes()
	return s
}

// SetPipeline wires the command pipeline backing webhook ingress.
func (s *Server) SetPipeline(p Pipeline) { s.pipeline = p }

// SetIDFactory wires the ID factory used to mint session-flash IDs when a
// caller omits one. Defaults to mucore.UUIDFactory{} if never called.
func (s *Server) SetIDFactory(ids mucore.IDFactory) { s.ids = ids }

// SetReloadSupervisor wires the generation supervisor backing
// /api/control-plane/{reload,rollback}.
func (s *Server) SetReloadSupervisor(sup *mureload.Supervisor) { s.reload = sup }

// RegisterAdapter wires one channel's webhook adapter under its channel id.
func (s *Server) RegisterAdapter(channel string, a muadapter.Adapter) {
	s.adapters[channel] = a
}

// SetIssueStore wires the issue DAG external-collaborator seam.
func (s *Server) SetIssueStore(store muissue.Store) { s.issues = store }

// SetForum wires the forum external-collaborator seam.
func (s *Server) SetForum(f muissue.Forum) { s.forum = f }

// SetEventJournal wires the events.jsonl store for /api/events*.
func (s *Server) SetEventJournal(ej *mujournal.EventJournal) { s.events = ej }

// SetSessionFlashJournal wires the session_flash.jsonl store.
func (s *Server) SetSessionFlashJournal(sf *mujournal.SessionFlashJournal) { s.flash = sf }

// SetOutboxDispatcher stores the outbox dispatcher on the Server. No
// handler reads it; GET /api/status reports only reload counters.
func (s *Server) SetOutboxDispatcher(d *muoutbox.Dispatcher) { s.outbox = d }

// ValidateWiring checks that every required collaborator has been set,
// mirroring the teacher's fail-fast startup check.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.pipeline == nil {
		errs = append(errs, fmt.Errorf("pipeline not set (call SetPipeline)"))
	}
	if s.reload == nil {
		errs = append(errs, fmt.Errorf("reload supervisor not set (call SetReloadSupervisor)"))
	}
	if s.issues == nil {
		errs = append(errs, fmt.Errorf("issue store not set (call SetIssueStore)"))
	}
	if s.forum == nil {
		errs = append(errs, fmt.Errorf("forum not set (call SetForum)"))
	}
	if s.events == nil {
		errs = append(errs, fmt.Errorf("event journal not set (call SetEventJournal)"))
	}
	if s.flash == nil {
		errs = append(errs, fmt.Errorf("session flash journal not set (call SetSessionFlashJournal)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("muapi: server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers every route named in spec §6.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/webhooks/:channel", s.webhookHandler)

	cp := s.echo.Group("/api/control-plane")
	cp.POST("/reload", s.reloadHandler)
	cp.POST("/rollback", s.rollbackHandler)
	cp.GET("/channels", s.channelsHandler)

	s.echo.GET("/api/status", s.statusHandler)

	issues := s.echo.Group("/api/issues")
	issues.GET("", s.listIssuesHandler)
	issues.POST("", s.createIssueHandler)
	issues.GET("/ready", s.readyIssuesHandler)
	issues.PATCH("/:id", s.updateIssueHandler)
	issues.POST("/:id/close", s.closeIssueHandler)
	issues.POST("/:id/claim", s.claimIssueHandler)

	forum := s.echo.Group("/api/forum")
	forum.GET("/:topic", s.readForumHandler)
	forum.POST("/:topic", s.postForumHandler)

	s.echo.GET("/api/events", s.listEventsHandler)
	s.echo.GET("/api/events/tail", s.tailEventsHandler)

	flash := s.echo.Group("/api/session-flash")
	flash.GET("", s.listSessionFlashHandler)
	flash.POST("", s.createSessionFlashHandler)
	flash.POST("/:id/ack", s.ackSessionFlashHandler)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) now() int64 {
	if s.clock != nil {
		return s.clock()
	}
	return 0
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
