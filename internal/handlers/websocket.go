package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/peergrid/signaling/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// wsChannel adapts one websocket connection to the router's
// PushChannel contract.
type wsChannel struct {
	peerID string
	conn   *websocket.Conn
	send   chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSChannel(peerID string, conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		peerID: peerID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// TrySend hands one signal entry to the write pump. It never blocks;
// a closed channel or full buffer reports failure so the router falls
// back to queueing.
func (ch *wsChannel) TrySend(entry models.SignalEntry) bool {
	select {
	case <-ch.closed:
		return false
	default:
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal signal for %s: %v", ch.peerID, err)
		return false
	}
	select {
	case ch.send <- data:
		return true
	default:
		log.Printf("Failed to send signal to peer %s, buffer full", ch.peerID)
		return false
	}
}

// sendFrame buffers a protocol frame (acks, pongs, errors) for the
// write pump.
func (ch *wsChannel) sendFrame(frame models.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Failed to marshal frame for %s: %v", ch.peerID, err)
		return
	}
	select {
	case ch.send <- data:
	default:
		log.Printf("Failed to send frame to peer %s, buffer full", ch.peerID)
	}
}

func (ch *wsChannel) Close() {
	ch.closeOnce.Do(func() { close(ch.closed) })
}

func (ch *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ch.conn.Close()
	}()

	for {
		select {
		case message := <-ch.send:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}
		case <-ticker.C:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ch.closed:
			ch.flushAndClose()
			return
		}
	}
}

// flushAndClose writes any frames buffered before Close, then the
// close handshake.
func (ch *wsChannel) flushAndClose() {
	for {
		select {
		case message := <-ch.send:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			ch.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// HandleSignaling upgrades the connection and registers it as the
// peer's push channel; queued signals flush immediately. The
// connection then carries join/leave/signal frames until either side
// closes it. Dropping the connection does not end room membership;
// the peer can fall back to long-polling.
func (a *API) HandleSignaling(c *gin.Context) {
	peerID := c.Param("peerId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	ch := newWSChannel(peerID, conn)
	go ch.writePump()
	a.router.RegisterChannel(peerID, ch)
	a.registry.TouchPeer(peerID)
	log.Printf("Peer %s connected via websocket", peerID)

	a.readPump(ch)
}

func (a *API) readPump(ch *wsChannel) {
	defer func() {
		ch.Close()
		if a.router.UnregisterChannel(ch.peerID, ch) {
			log.Printf("Peer %s disconnected", ch.peerID)
		}
		ch.conn.Close()
	}()

	ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	ch.conn.SetPongHandler(func(string) error {
		ch.conn.SetReadDeadline(time.Now().Add(pongWait))
		a.registry.TouchPeer(ch.peerID)
		return nil
	})

	for {
		_, message, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var frame models.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("Failed to parse frame from %s: %v", ch.peerID, err)
			continue
		}
		a.handleFrame(ch, frame)
	}
}

// handleFrame dispatches one client frame. Membership frames go to the
// registry; everything else is relayed through the router.
func (a *API) handleFrame(ch *wsChannel, frame models.Frame) {
	a.registry.TouchPeer(ch.peerID)

	switch frame.Type {
	case models.SignalTypeJoin:
		if frame.Room == "" {
			ch.sendFrame(models.Frame{Type: models.SignalTypeJoinResult, Error: models.ErrRoomRequired})
			return
		}
		members, err := a.registry.JoinRoom(ch.peerID, frame.Room, frame.Metadata)
		if err != nil {
			ch.sendFrame(models.Frame{
				Type:  models.SignalTypeJoinResult,
				Room:  frame.Room,
				Error: models.ErrCapacityExceeded,
			})
			return
		}
		ch.sendFrame(models.Frame{
			Type:    models.SignalTypeJoinResult,
			Room:    frame.Room,
			Success: true,
			Peers:   members,
		})

	case models.SignalTypeLeave:
		// Ack before the leave: leaving the last room tears this
		// channel down, which would drop a trailing ack.
		if frame.Room != "" {
			member := slices.Contains(a.registry.GetPeerRooms(ch.peerID), frame.Room)
			ch.sendFrame(models.Frame{Type: models.SignalTypeLeaveResult, Room: frame.Room, Success: member})
			a.registry.LeaveRoom(ch.peerID, frame.Room)
			return
		}
		inRooms := len(a.registry.GetPeerRooms(ch.peerID)) > 0
		ch.sendFrame(models.Frame{Type: models.SignalTypeLeaveResult, Success: inRooms})
		a.registry.LeaveAllRooms(ch.peerID)

	case models.SignalTypePing:
		ch.sendFrame(models.Frame{Type: models.SignalTypePong})

	default:
		res := a.router.QueueSignal(ch.peerID, frame.To, frame.Type, frame.Payload, frame.Room)
		if !res.Success {
			ch.sendFrame(models.Frame{Type: models.SignalTypeError, Error: res.Error})
		}
	}
}
