package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) RunJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	result, err := s.scheduler.RunJob(c.Request.Context(), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"job":              name,
		"selected":         result.Selected,
		"processed":        result.Processed,
		"skipped":          result.Skipped,
		"provision_failed": result.ProvisionFailed,
	}})
}
