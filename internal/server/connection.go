package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
)

func (s *Server) CreateConnection(c *gin.Context) {
	var req connectiondomain.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	conn, err := s.connectionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": conn})
}

func (s *Server) GenerateConnectionInvoice(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.connectionSvc.GenerateInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

// ProvisionConnection pushes the connection's credentials to its gateway
// outside the scheduler loop.
func (s *Server) ProvisionConnection(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.connectionSvc.Provision(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
