// Package server exposes the generation lifecycle over HTTP and websockets.
package server

import (
	_ "embed"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"github.com/mhpenta/weaver"
	"github.com/mhpenta/weaver/lifecycle"
	"github.com/mhpenta/weaver/notify"
)

// defaultAllowedOrigin applies when no CORS origins are configured.
const defaultAllowedOrigin = "http://localhost:3000"

//go:embed static/index.html
var indexHTML []byte

// ModelLister reports the models available for generation.
type ModelLister interface {
	Models() []weaver.ModelInfo
}

// Options configures a Server.
type Options struct {
	// Timeout bounds each generation started from a live session.
	Timeout time.Duration

	// Debounce is the quiescence window of the debounced policy.
	Debounce time.Duration

	// Progress drives the simulated progress bar of live sessions.
	Progress lifecycle.ProgressConfig

	// AllowedOrigins limits CORS and websocket origins. Empty allows
	// http://localhost:3000 for CORS and any origin for websockets.
	AllowedOrigins []string

	// Development enables gin debug mode.
	Development bool

	// Metrics mounts /metrics and the gin request metrics.
	Metrics bool
}

// Server owns the HTTP routes and the live sessions.
type Server struct {
	action weaver.PromptGenerator
	models ModelLister
	bus    *notify.Bus
	opts   Options
	logger *zap.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// New creates a Server. bus may be shared with other servers in the process.
func New(action weaver.PromptGenerator, models ModelLister, bus *notify.Bus, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = weaver.DefaultActionTimeout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = lifecycle.DefaultDebounce
	}
	if opts.Progress == (lifecycle.ProgressConfig{}) {
		opts.Progress = lifecycle.DefaultProgressConfig()
	}

	s := &Server{
		action:   action,
		models:   models,
		bus:      bus,
		opts:     opts,
		logger:   logger.Named("server"),
		sessions: make(map[string]*session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if s.opts.Development {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(GinZapLogger(s.logger))
	router.Use(gin.Recovery())

	if s.opts.Metrics {
		p := ginprometheus.NewPrometheus("gin")
		p.Use(router)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.allowedOrigins()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.GET("/", s.handleIndex)

	api := router.Group("/api")
	api.POST("/generate", s.handleGenerate)
	api.GET("/models", s.handleModels)
	api.GET("/download", s.handleDownload)
	api.GET("/ws", s.handleWS)

	return router
}

// Close tears down every live session. Later websocket upgrades are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// SessionCount returns the number of open live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	activeSessions.Inc()
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		activeSessions.Dec()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	return slices.Contains(s.allowedOrigins(), origin)
}

// allowedOrigins is shared by CORS and the websocket origin check.
func (s *Server) allowedOrigins() []string {
	if len(s.opts.AllowedOrigins) > 0 {
		return s.opts.AllowedOrigins
	}
	return []string{defaultAllowedOrigin}
}
