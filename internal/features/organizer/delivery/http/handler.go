package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rwa-raffle-backend/internal/features/organizer/models"
	organizerservice "rwa-raffle-backend/internal/features/organizer/service"
)

type OrganizerHandler struct {
	service organizerservice.OrganizerService
}

func NewOrganizerHandler(service organizerservice.OrganizerService) *OrganizerHandler {
	return &OrganizerHandler{service: service}
}

// RegisterRoutes mounts the admin-only organizer management endpoints.
// The caller is expected to wrap the group with the admin key middleware.
func (h *OrganizerHandler) RegisterRoutes(router *gin.RouterGroup) {
	organizers := router.Group("/organizers")
	{
		organizers.POST("", h.register)
		organizers.GET("", h.list)
		organizers.GET("/:publicKey", h.getByPublicKey)
		organizers.PUT("/:publicKey/status", h.updateStatus)
	}
}

func (h *OrganizerHandler) register(c *gin.Context) {
	var input models.RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.service.Register(c.Request.Context(), &input)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyRegistered):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrInvalidTier), errors.Is(err, models.ErrInvalidPublicKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}

func (h *OrganizerHandler) list(c *gin.Context) {
	profiles, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizers": profiles})
}

func (h *OrganizerHandler) getByPublicKey(c *gin.Context) {
	profile, err := h.service.GetByPublicKey(c.Request.Context(), c.Param("publicKey"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *OrganizerHandler) updateStatus(c *gin.Context) {
	var input models.StatusUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateStatus(c.Request.Context(), c.Param("publicKey"), input.Active); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
