package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peergrid/signaling/internal/models"
	"github.com/peergrid/signaling/internal/presence"
)

// CreateRoom provisions a room ahead of any join (requires
// authentication). An omitted name gets a generated one.
func (a *API) CreateRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := req.Name
	if name == "" {
		name = "room-" + uuid.NewString()[:8]
	}

	info, err := a.registry.CreateRoom(name, req.MaxPeers, userID.(string))
	if err != nil {
		if errors.Is(err, presence.ErrRoomExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.mirror.StoreRoom(info)
	log.Printf("Room created: %s (max %d) by user %s", info.Name, info.MaxPeers, userID)

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		Room:     info.Name,
		MaxPeers: info.MaxPeers,
	})
}

// GetRoom reports room metadata and occupancy (public).
func (a *API) GetRoom(c *gin.Context) {
	info, ok := a.registry.GetRoom(c.Param("room"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteRoom evicts all members and removes the room. Rooms with a
// recorded creator can only be deleted by that creator.
func (a *API) DeleteRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	name := c.Param("room")
	info, ok := a.registry.GetRoom(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if info.CreatedBy != "" && info.CreatedBy != userID.(string) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	a.registry.DestroyRoom(name)
	a.mirror.DeleteRoom(name)
	log.Printf("Room deleted: %s by user %s", name, userID)

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}
