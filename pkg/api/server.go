package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/audit"
	"github.com/quackhq/quack/pkg/blob"
	"github.com/quackhq/quack/pkg/bridge"
	"github.com/quackhq/quack/pkg/database"
	"github.com/quackhq/quack/pkg/dispatch"
	"github.com/quackhq/quack/pkg/keys"
	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/recorder"
	"github.com/quackhq/quack/pkg/registry"
	"github.com/quackhq/quack/pkg/sessions"
	"github.com/quackhq/quack/pkg/webhooks"
)

// Deps bundles everything the HTTP surface talks to. Optional components
// may be nil; their routes respond 503.
type Deps struct {
	Store      *mailbox.Store
	Registry   *registry.Service
	Keys       *keys.Service
	Audit      *audit.Service
	Archive    *audit.Archive
	Blobs      *blob.Store
	Webhooks   *webhooks.Service
	Sessions   *sessions.Registry
	Recorder   *recorder.Service
	Bridge     *bridge.ConnectionManager
	Dispatcher *dispatch.Dispatcher
	MCPHandler http.Handler
	DBClient   *database.Client

	Version string

	// AuthDevBypass grants admin to every request without a key.
	AuthDevBypass bool
}

// Server is the HTTP relay surface.
type Server struct {
	Deps

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires the routes onto a fresh Echo instance.
func NewServer(deps Deps) *Server {
	s := &Server{Deps: deps, echo: echo.New()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(requestLogger())

	// Unauthenticated: liveness and the bridge socket (token-authed in-band).
	e.GET("/health", s.healthHandler)
	e.GET("/bridge/connect", s.bridgeConnectHandler)

	api := e.Group("/api", s.requireAPIKey())

	// Mailbox lifecycle.
	api.POST("/send", s.sendHandler)
	api.GET("/inbox/:seg1", s.inboxHandler)
	api.GET("/inbox/:seg1/:seg2", s.inboxHandler)
	api.GET("/inbox/:seg1/:seg2/:seg3", s.inboxHandler)
	api.GET("/message/:id", s.getMessageHandler)
	api.POST("/receive/:id", s.receiveHandler)
	api.POST("/complete/:id", s.completeHandler)
	api.POST("/approve/:id", s.approveHandler)
	api.POST("/status/:id", s.updateStatusHandler)
	api.DELETE("/message/:id", s.deleteMessageHandler)
	api.GET("/threads", s.listThreadsHandler)
	api.GET("/thread/:id", s.getThreadHandler)
	api.GET("/stats", s.statsHandler)
	api.GET("/sessions", s.listSessionsHandler)

	// File blobs.
	api.POST("/files", s.uploadFileHandler)
	api.GET("/files/:id", s.getFileHandler)
	api.GET("/files/:id/meta", s.getFileMetaHandler)
	api.DELETE("/files/:id", s.deleteFileHandler)

	// Webhook subscriptions.
	api.POST("/webhooks", s.subscribeWebhookHandler)
	api.GET("/webhooks", s.listWebhooksHandler)
	api.DELETE("/webhooks/:id", s.unsubscribeWebhookHandler)

	// Agent registry.
	api.POST("/agents", s.registerAgentHandler)
	api.GET("/agents", s.listAgentsHandler)
	api.GET("/agents/:platform/:name", s.getAgentHandler)
	api.PUT("/agents/:platform/:name", s.updateAgentHandler)
	api.DELETE("/agents/:platform/:name", s.deleteAgentHandler)
	api.POST("/agents/:platform/:name/ping", s.pingAgentHandler)

	// API keys (admin only, enforced in the handlers).
	api.POST("/keys", s.createKeyHandler)
	api.GET("/keys", s.listKeysHandler)
	api.DELETE("/keys/:id", s.revokeKeyHandler)

	// Audit log and thread archive.
	api.GET("/audit", s.queryAuditHandler)
	api.GET("/audit/stats", s.auditStatsHandler)
	api.GET("/archive", s.listArchiveHandler)
	api.GET("/archive/:threadId", s.getArchiveHandler)

	// Flight recorder.
	agent := e.Group("/api/v1/agent", s.requireAPIKey())
	agent.POST("/journal", s.journalHandler(""))
	agent.POST("/thought", s.journalHandler("THOUGHT"))
	agent.POST("/error", s.journalHandler("ERROR"))
	agent.POST("/checkpoint", s.journalHandler("CHECKPOINT"))
	agent.GET("/context/:sessionId", s.sessionContextHandler)
	agent.GET("/context/agent/:platform/:name", s.agentContextHandler)
	agent.GET("/script/:platform/:name", s.scriptHandler)
	agent.POST("/signin", s.signinHandler)
	agent.POST("/session/open", s.openSessionHandler)
	agent.POST("/session/new", s.newSessionHandler)
	agent.POST("/session/close", s.closeSessionHandler)

	// Bridge HTTP side.
	br := e.Group("/bridge", s.requireAPIKey())
	br.GET("/relay", s.bridgeRelayHandler)
	br.POST("/send", s.bridgeSendHandler)
	br.GET("/agents", s.bridgeAgentsHandler)
	br.GET("/status", s.bridgeStatusHandler)

	// Protocol-adapter tool server.
	if s.MCPHandler != nil {
		mount := func(c *echo.Context) error {
			s.MCPHandler.ServeHTTP(c.Response(), c.Request())
			return nil
		}
		e.Any("/mcp", mount)
		e.Any("/mcp/*", mount)
	}
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
