package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dulm-api/internal/service"
)

// RoomHandler mantiene dependencias para los endpoints de salas.
type RoomHandler struct {
	logger *zap.Logger
	rooms  *service.RoomService
}

func NewRoomHandler(logger *zap.Logger, rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{logger: logger, rooms: rooms}
}

// CreateRoom maneja POST /rooms.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create room request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), claims.UserID, req.Name)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message, "field": vErr.Field})
			return
		}
		// ErrRoomCodesExhausted llega aqui: error generico hacia el
		// cliente, la alarma ya quedo logueada en el servicio.
		h.logger.Error("create room failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":   room.ID,
		"name": room.Name,
		"code": room.Code,
	})
}

// GetRoom maneja GET /rooms/:id.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		h.logger.Error("get room failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// LeaveRoom maneja POST /rooms/:id/leave.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	roomID := c.Param("id")
	if err := h.rooms.LeaveRoom(c.Request.Context(), roomID, claims.UserID); err != nil {
		if errors.Is(err, service.ErrMembershipNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
			return
		}
		h.logger.Error("leave room failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}
