// Package web serves the summarization form and its JSON counterpart.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"pagedigest/internal/domain"
	"pagedigest/internal/form"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const DefaultStatsWindow = 30 * 24 * time.Hour

//go:embed templates/*.html
var templatesFS embed.FS

type Summarizer interface {
	Submit(ctx context.Context, source domain.Source, req domain.SummarizationRequest) (form.Result, error)
}

type StatsReader interface {
	UsageStats(ctx context.Context, since time.Time) ([]domain.ChainStats, error)
}

type Config struct {
	AllowedOrigins []string
	StatsWindow    time.Duration
}

type Server struct {
	engine      *gin.Engine
	summarizer  Summarizer
	stats       StatsReader
	statsWindow time.Duration
	now         func() time.Time
	log         *slog.Logger
}

func New(summarizer Summarizer, stats StatsReader, cfg Config, log *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	statsWindow := cfg.StatsWindow
	if statsWindow <= 0 {
		statsWindow = DefaultStatsWindow
	}

	s := &Server{
		engine:      gin.New(),
		summarizer:  summarizer,
		stats:       stats,
		statsWindow: statsWindow,
		now:         time.Now,
		log:         log,
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.SetHTMLTemplate(tmpl)

	s.engine.GET("/", s.getIndex)
	s.engine.POST("/", s.postIndex)
	s.engine.GET("/health", s.getHealth)

	api := s.engine.Group("/api")
	if len(cfg.AllowedOrigins) > 0 {
		api.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	api.POST("/summarize", s.postSummarize)
	api.OPTIONS("/summarize", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.GET("/stats", s.getStats)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger logs the route template instead of the raw path and never
// reads the request body.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.InfoContext(c.Request.Context(), "Handled request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
