package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nikhilbhatia/typerush/backend/internal/auth"
	"github.com/nikhilbhatia/typerush/backend/internal/race"
	"github.com/nikhilbhatia/typerush/backend/internal/ratelimit"
	"github.com/nikhilbhatia/typerush/backend/internal/words"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	messagesPerSecond = 20
	messageBurst      = 40

	defaultRaceWordCount = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one authenticated connection. The room binding is only mutated
// from the readPump goroutine (and by the hub under its lock on unbind), so
// command handling never races with itself.
type Client struct {
	hub      *Hub
	registry *race.Registry
	conn     *websocket.Conn
	send     chan []byte

	identity race.Identity
	room     *race.Room
	roomCode string

	rateLimiter *ratelimit.Limiter
}

// ServeWs authenticates the handshake token and upgrades the connection.
// A missing or invalid token is rejected before the upgrade; no room state is
// ever created for it.
func ServeWs(hub *Hub, registry *race.Registry, tokens *auth.Service, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:      hub,
		registry: registry,
		conn:     conn,
		send:     make(chan []byte, 512),
		identity: race.Identity{
			ID:   claims.UserID,
			Name: claims.Username,
		},
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	hub.add(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings > 1000 {
				log.Printf("Disconnecting %s for excessive rate limit violations", c.identity.ID)
				return
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.sendError("", "malformed message")
			continue
		}

		c.handleMessage(&env)
	}
}

// disconnect surfaces the connection drop to the coordinator. Leaving is
// destructive: a participant who reconnects joins fresh.
func (c *Client) disconnect() {
	if c.room != nil {
		c.room.Leave(c.identity.ID)
		c.room = nil
	}
	c.hub.remove(c)
}

// handleMessage dispatches one client command. A panic in a single command is
// converted to a generic failure ack; one bad room must not take down the
// connection or the process.
func (c *Client) handleMessage(env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic handling %s from %s: %v", env.Type, c.identity.ID, r)
			c.sendError(env.Type, "internal error")
		}
	}()

	switch env.Type {
	case CmdCreateRace:
		c.handleCreate(env.Payload)
	case CmdJoinRace:
		c.handleJoin(env.Payload)
	case CmdStartRace:
		c.handleStart()
	case CmdReportProgress:
		c.handleProgress(env.Payload)
	case CmdFinishRace:
		c.handleFinish(env.Payload)
	default:
		c.sendError(env.Type, "unknown command")
	}
}

// dropClosedRoom clears a binding left over from a room the registry purged.
// The hub side was already unbound by CloseRoom.
func (c *Client) dropClosedRoom() {
	if c.room != nil && c.room.Closed() {
		c.room = nil
	}
}

func (c *Client) handleCreate(payload json.RawMessage) {
	c.dropClosedRoom()
	if c.room != nil {
		c.sendError(CmdCreateRace, "already in a room")
		return
	}

	var req CreateRacePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError(CmdCreateRace, "malformed payload")
			return
		}
	}
	if len(req.WordList) == 0 {
		req.WordList = words.Random(defaultRaceWordCount)
	}

	room, err := c.registry.Create(c.identity, race.Config{
		DurationSeconds: req.DurationSeconds,
		WordList:        req.WordList,
	})
	if err != nil {
		log.Printf("Error creating room for %s: %v", c.identity.ID, err)
		c.sendError(CmdCreateRace, "internal error")
		return
	}

	c.hub.Bind(c, room.Code())
	c.room = room

	c.write(MsgRaceCreated, RoomAckPayload{RoomCode: room.Code(), Room: room.Snapshot()})
}

func (c *Client) handleJoin(payload json.RawMessage) {
	c.dropClosedRoom()
	if c.room != nil {
		c.sendError(CmdJoinRace, "already in a room")
		return
	}

	var req JoinRacePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomCode == "" {
		c.sendError(CmdJoinRace, "malformed payload")
		return
	}

	room, err := c.registry.Lookup(req.RoomCode)
	if err != nil {
		c.sendError(CmdJoinRace, err.Error())
		return
	}

	// Bind before joining so the join broadcast reaches this connection
	// too; the ack carries the authoritative snapshot either way.
	c.hub.Bind(c, room.Code())

	snap, err := room.Join(c.identity)
	if err != nil {
		c.hub.Unbind(c)
		c.sendError(CmdJoinRace, err.Error())
		return
	}
	c.room = room

	c.write(MsgRaceJoined, RoomAckPayload{RoomCode: room.Code(), Room: snap})
}

func (c *Client) handleStart() {
	if c.room == nil {
		c.sendError(CmdStartRace, race.ErrNotInRoom.Error())
		return
	}

	if _, err := c.room.Start(c.identity.ID); err != nil {
		if errors.Is(err, race.ErrRoomNotFound) {
			c.room = nil
		}
		c.sendError(CmdStartRace, err.Error())
		return
	}
	c.write(MsgAck, AckPayload{Command: CmdStartRace})
}

// handleProgress is fire-and-forget: no ack on success, no error on failure.
func (c *Client) handleProgress(payload json.RawMessage) {
	if c.room == nil {
		return
	}

	var req ProgressPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.room.Progress(c.identity.ID, req.WPM, req.Accuracy, req.ProgressPercent)
}

func (c *Client) handleFinish(payload json.RawMessage) {
	if c.room == nil {
		c.sendError(CmdFinishRace, race.ErrNotInRoom.Error())
		return
	}

	var req FinishPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(CmdFinishRace, "malformed payload")
		return
	}

	position, err := c.room.Finish(c.identity.ID, req.WPM, req.Accuracy)
	if err != nil {
		if errors.Is(err, race.ErrRoomNotFound) {
			c.room = nil
		}
		c.sendError(CmdFinishRace, err.Error())
		return
	}
	c.write(MsgRaceFinished, FinishAckPayload{Position: position})
}

func (c *Client) write(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", msgType, err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for %s, dropping %s", c.identity.ID, msgType)
	}
}

func (c *Client) sendError(command, message string) {
	c.write(MsgError, ErrorPayload{Command: command, Error: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
