// Package ingest exposes an HTTP and websocket endpoint that acts as a gaze
// source and page feed.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/verte-zerg/gazemap/internal/gaze"
	"github.com/verte-zerg/gazemap/internal/logging"
	"github.com/verte-zerg/gazemap/internal/model"
)

// Options configure a Server.
type Options struct {
	Addr   string
	Secret string
	Logger *slog.Logger
}

// Server receives gaze and page records over HTTP.
type Server struct {
	opts     Options
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu       sync.Mutex
	onSample gaze.SampleFunc
	onPage   gaze.PageFunc
	addr     net.Addr

	started  atomic.Bool
	paused   atomic.Bool
	received atomic.Int64
}

// New builds the router. Call Begin to start listening.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine = s.router()
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"paused":   s.paused.Load(),
			"received": s.received.Load(),
		})
	})

	v1 := r.Group("/v1")
	if s.opts.Secret != "" {
		v1.Use(requireToken(s.opts.Secret))
	}
	{
		v1.POST("/gaze", s.handleGaze)
		v1.POST("/page", s.handlePage)
		v1.GET("/stream", s.handleStream)
	}
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.opts.Logger.Debug("ingest request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the bound address once Begin has succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetSampleCallback implements gaze.Source.
func (s *Server) SetSampleCallback(fn gaze.SampleFunc) {
	s.mu.Lock()
	s.onSample = fn
	s.mu.Unlock()
}

// SetPageCallback implements gaze.PageFeed.
func (s *Server) SetPageCallback(fn gaze.PageFunc) {
	s.mu.Lock()
	s.onPage = fn
	s.mu.Unlock()
}

// IsReady implements gaze.Source.
func (s *Server) IsReady() bool {
	return s.opts.Addr != ""
}

// Pause implements gaze.Source.
func (s *Server) Pause() { s.paused.Store(true) }

// Resume implements gaze.Source.
func (s *Server) Resume() { s.paused.Store(false) }

// Begin binds the listener and serves until ctx is cancelled.
func (s *Server) Begin(ctx context.Context) error {
	s.paused.Store(false)
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("ingest server stopped", "err", err)
		}
	}()
	s.opts.Logger.Info("ingest listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) deliver(rec gaze.Record) {
	s.mu.Lock()
	onSample, onPage := s.onSample, s.onPage
	s.mu.Unlock()
	if rec.Type == "gaze" {
		s.received.Add(1)
	}
	gaze.Deliver(rec, onSample, onPage, s.paused.Load())
}

// decodeRecords accepts a single record or an array of records.
func decodeRecords(body []byte, defaultType string) ([]gaze.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	var recs []gaze.Record
	if body[0] == '[' {
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, err
		}
	} else {
		var rec gaze.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		recs = []gaze.Record{rec}
	}
	for i := range recs {
		if recs[i].Type == "" {
			recs[i].Type = defaultType
		}
	}
	return recs, nil
}

func (s *Server) handleGaze(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := decodeRecords(body, "gaze")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted := 0
	for _, rec := range recs {
		if rec.Type != "gaze" || rec.X == nil || rec.Y == nil {
			continue
		}
		s.deliver(rec)
		accepted++
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (s *Server) handlePage(c *gin.Context) {
	var rec gaze.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch rec.Type {
	case "nav", "scroll":
	case "resize":
		if !model.ValidSize(rec.W, rec.H) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("viewport %dx%d out of range (max %d)", rec.W, rec.H, model.MaxViewportSide)})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported page event %q", rec.Type)})
		return
	}
	s.deliver(rec)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.opts.Logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	s.opts.Logger.Info("stream connected", "remote", c.Request.RemoteAddr)
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.opts.Logger.Warn("stream read failed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		recs, err := decodeRecords(message, "gaze")
		if err != nil {
			s.opts.Logger.Warn("skipping malformed stream record", "err", err)
			continue
		}
		for _, rec := range recs {
			s.deliver(rec)
		}
	}
}
