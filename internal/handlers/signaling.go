package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/peergrid/signaling/config"
	"github.com/peergrid/signaling/internal/middleware"
	"github.com/peergrid/signaling/internal/models"
	"github.com/peergrid/signaling/internal/presence"
	"github.com/peergrid/signaling/internal/redis"
	"github.com/peergrid/signaling/internal/router"
)

// API bundles the coordinator components behind the HTTP surface.
type API struct {
	cfg      *config.Config
	registry *presence.Registry
	router   *router.Router
	mirror   *redis.Mirror
}

func NewAPI(cfg *config.Config, registry *presence.Registry, rt *router.Router, mirror *redis.Mirror) *API {
	return &API{cfg: cfg, registry: registry, router: rt, mirror: mirror}
}

// RegisterRoutes mounts the signaling surface on the engine.
func (a *API) RegisterRoutes(e *gin.Engine) {
	e.POST("/api/auth/login", Login(a.cfg.JWTSecret))

	rooms := e.Group("/api/rooms")
	rooms.GET("/:room", a.GetRoom)
	rooms.POST("", middleware.JWTAuth(a.cfg.JWTSecret), a.CreateRoom)
	rooms.DELETE("/:room", middleware.JWTAuth(a.cfg.JWTSecret), a.DeleteRoom)

	api := e.Group("/api", a.RequireEnabled())
	api.POST("/join", a.Join)
	api.POST("/leave", a.Leave)
	api.POST("/signal", a.SendSignal)
	api.GET("/signal", a.PollSignals)
	api.GET("/peers", a.ListPeers)

	e.GET("/api/info", a.Info)

	e.GET("/ws/signal/:peerId", a.RequireEnabled(), a.HandleSignaling)
}

// RequireEnabled rejects signaling traffic when the subsystem is
// switched off by configuration.
func (a *API) RequireEnabled() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.cfg.Signaling.Enabled {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Signaling is disabled",
			})
			return
		}
		c.Next()
	}
}

// Join enrolls a peer into a room and returns the roster plus ICE
// configuration. A full room comes back as success:false with a 200
// status; it is an expected outcome, not a transport error.
func (a *API) Join(c *gin.Context) {
	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	members, err := a.registry.JoinRoom(req.PeerID, req.Room, req.Metadata)
	if err != nil {
		if errors.Is(err, presence.ErrRoomFull) {
			c.JSON(http.StatusOK, models.JoinResponse{Error: models.ErrCapacityExceeded})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Printf("Peer %s joined room %s (%d member(s))", req.PeerID, req.Room, len(members))
	c.JSON(http.StatusOK, models.JoinResponse{
		Success:    true,
		Room:       req.Room,
		Peers:      members,
		ICEServers: a.cfg.ICEServers(),
	})
}

// Leave removes a peer from one room, or from every room when none is
// named.
func (a *API) Leave(c *gin.Context) {
	var req models.LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Room != "" {
		left := a.registry.LeaveRoom(req.PeerID, req.Room)
		c.JSON(http.StatusOK, models.LeaveResponse{Success: left, Room: req.Room})
		return
	}

	rooms := a.registry.LeaveAllRooms(req.PeerID)
	c.JSON(http.StatusOK, models.LeaveResponse{Success: len(rooms) > 0, Rooms: rooms})
}

// SendSignal relays one signaling payload. Malformed input comes back
// as a 400 with the rejection code.
func (a *API) SendSignal(c *gin.Context) {
	var req models.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a.registry.TouchPeer(req.From)
	res := a.router.QueueSignal(req.From, req.To, req.Type, req.Payload, req.Room)
	if !res.Success {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PollSignals is the long-poll fallback transport. It blocks until a
// signal arrives or the timeout elapses, returning an empty array on
// timeout.
func (a *API) PollSignals(c *gin.Context) {
	peerID := c.Query("peerId")
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required"})
		return
	}

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeout"})
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	entries := a.router.Poll(c.Request.Context(), peerID, timeout)
	if entries == nil {
		entries = []models.SignalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// ListPeers reports the members of a room with their liveness. A peer
// is online when it holds an open push channel or was active within
// the inactivity window.
func (a *API) ListPeers(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	members := a.registry.GetRoomPeers(room)
	peers := make([]models.PeerStatus, 0, len(members))
	for _, m := range members {
		lastSeen, known := a.registry.PeerLastSeen(m.PeerID)
		online := a.router.HasChannel(m.PeerID) ||
			(known && time.Since(lastSeen) < a.cfg.Signaling.PeerTimeout)
		peers = append(peers, models.PeerStatus{
			PeerID:   m.PeerID,
			Name:     m.Name,
			Online:   online,
			LastSeen: lastSeen,
			Metadata: m.Metadata,
		})
	}
	c.JSON(http.StatusOK, peers)
}

// Info reports service configuration and live statistics. Available
// even when signaling is disabled so clients can probe the switch.
func (a *API) Info(c *gin.Context) {
	regStats := a.registry.GetStats()
	routerStats := a.router.GetStats()

	c.JSON(http.StatusOK, models.InfoResponse{
		Enabled:     a.cfg.Signaling.Enabled,
		Rooms:       a.registry.GetRoomList(),
		PeerCount:   regStats.Peers,
		STUNServers: a.cfg.Signaling.STUNServers,
		TURNServers: a.cfg.Signaling.TURNServers,
		Stats: models.InfoStats{
			Rooms:          regStats.Rooms,
			Peers:          regStats.Peers,
			SignalQueues:   routerStats.SignalQueues,
			QueuedSignals:  routerStats.QueuedSignals,
			ActiveChannels: routerStats.ActiveChannels,
			PendingPolls:   routerStats.PendingPolls,
		},
	})
}
