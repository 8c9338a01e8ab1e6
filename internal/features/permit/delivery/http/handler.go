package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	organizermodels "rwa-raffle-backend/internal/features/organizer/models"
	"rwa-raffle-backend/internal/features/permit/models"
	permitservice "rwa-raffle-backend/internal/features/permit/service"
)

type PermitHandler struct {
	service *permitservice.Service
}

func NewPermitHandler(service *permitservice.Service) *PermitHandler {
	return &PermitHandler{service: service}
}

func (h *PermitHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/permits", h.issue)
}

func (h *PermitHandler) issue(c *gin.Context) {
	var input models.IssueRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Issue(c.Request.Context(), &input)
	if err != nil {
		switch {
		case errors.Is(err, organizermodels.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, organizermodels.ErrInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, permitservice.ErrInvalidDeadline):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
