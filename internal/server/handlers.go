package server

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mhpenta/weaver"
)

const messageInvalidBody = "Invalid request body."

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// handleGenerate runs one Action call. Every outcome is a 200 with an
// ActionResult body; only an unreadable body is a 400.
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("invalid generate body", zap.Error(err))
		c.JSON(http.StatusBadRequest, weaver.Failed(messageInvalidBody))
		return
	}

	c.JSON(http.StatusOK, s.action.Generate(c.Request.Context(), req.Prompt))
}

func (s *Server) handleModels(c *gin.Context) {
	if s.models == nil {
		c.JSON(http.StatusOK, []weaver.ModelInfo{})
		return
	}
	models := s.models.Models()
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	c.JSON(http.StatusOK, models)
}

// handleDownload serves an inline image as an attachment. Hosted images are
// linked directly by the page and are not proxied or redirected.
func (s *Server) handleDownload(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if weaver.IsRemoteURL(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hosted images are downloaded from their own url"})
		return
	}

	data, contentType, err := weaver.DecodeImageDataURL(raw)
	if err != nil {
		s.logger.Debug("rejecting download", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported url"})
		return
	}

	filename := weaver.DownloadFilename(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, data)
}
