package web

import (
	"errors"
	"net/http"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
	"pagedigest/internal/loader"

	"github.com/gin-gonic/gin"
)

const (
	pageTitle           = "Summarization and Useful Chain Types"
	urlPlaceholder      = "https://francescocarlucci.com/blog/codeable-code-vetting"
	genericFailure      = "Could not summarize the page."
	contextLengthReason = "The page is too long for the stuff chain. Try map_reduce or refine."
	emptyDocumentReason = "The page has no readable text."
	tooLargeReason      = "The page is too large to summarize."
)

type indexPage struct {
	Title          string
	URLPlaceholder string
	ChainTypes     []domain.ChainType
	URL            string
	ChainType      domain.ChainType
	Summary        string
	Message        string
	Error          string
}

type summarizeRequest struct {
	APIKey    string `json:"api_key"`
	URL       string `json:"url"`
	ChainType string `json:"chain_type" binding:"required,oneof=stuff map_reduce refine"`
}

type summarizeResponse struct {
	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statsResponse struct {
	WindowHours int64               `json:"window_hours"`
	ChainTypes  []domain.ChainStats `json:"chain_types"`
}

func newIndexPage() indexPage {
	return indexPage{
		Title:          pageTitle,
		URLPlaceholder: urlPlaceholder,
		ChainTypes:     domain.ChainTypes(),
		ChainType:      domain.DefaultChainType,
	}
}

func (s *Server) getIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", newIndexPage())
}

// postIndex never puts the API key back into the page.
func (s *Server) postIndex(c *gin.Context) {
	page := newIndexPage()
	page.URL = c.PostForm("url")

	chainType, err := domain.ParseChainType(c.PostForm("chain_type"))
	if err != nil {
		page.Error = "Unsupported chain type."
		c.HTML(http.StatusBadRequest, "index.html", page)
		return
	}
	page.ChainType = chainType

	result, err := s.summarizer.Submit(c.Request.Context(), domain.SourceWeb, domain.SummarizationRequest{
		APIKey:    c.PostForm("api_key"),
		URL:       page.URL,
		ChainType: chainType,
	})
	if err != nil {
		page.Error = failureReason(err)
		c.HTML(http.StatusInternalServerError, "index.html", page)
		return
	}

	page.Summary = result.Summary
	page.Message = result.Message
	c.HTML(http.StatusOK, "index.html", page)
}

func (s *Server) postSummarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, summarizeResponse{Error: "invalid request body"})
		return
	}

	chainType, err := domain.ParseChainType(req.ChainType)
	if err != nil {
		c.JSON(http.StatusBadRequest, summarizeResponse{Error: "unsupported chain type"})
		return
	}

	result, err := s.summarizer.Submit(c.Request.Context(), domain.SourceAPI, domain.SummarizationRequest{
		APIKey:    req.APIKey,
		URL:       req.URL,
		ChainType: chainType,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, summarizeResponse{Error: failureReason(err)})
		return
	}

	if result.Message != "" {
		c.JSON(http.StatusUnprocessableEntity, summarizeResponse{Message: result.Message})
		return
	}

	c.JSON(http.StatusOK, summarizeResponse{Summary: result.Summary})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.stats.UsageStats(c.Request.Context(), s.now().Add(-s.statsWindow))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to read usage stats",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}

	c.JSON(http.StatusOK, statsResponse{
		WindowHours: int64(s.statsWindow.Hours()),
		ChainTypes:  stats,
	})
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// failureReason maps known causes to a user-facing sentence. Raw errors may
// carry provider details and stay in the logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrContextLengthExceeded):
		return contextLengthReason
	case errors.Is(err, loader.ErrEmptyDocument):
		return emptyDocumentReason
	case errors.Is(err, loader.ErrPageTooLarge):
		return tooLargeReason
	default:
		return genericFailure
	}
}
