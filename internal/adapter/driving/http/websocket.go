package http

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP bodies.
	maxMessageSize = 64 * 1024

	outboundBuffer = 64
)

var errSendBufferFull = errors.New("client send buffer full")

// WSClient is the authoritative transport handle for one connected user. It
// implements port.ConnectionHandle; all websocket writes go through the
// outbound channel so a single goroutine owns the connection.
type WSClient struct {
	id   domain.UserID
	conn *websocket.Conn

	outbound  chan wire.Frame
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	joined map[domain.RoomKey]struct{}
}

func newWSClient(id domain.UserID, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:       id,
		conn:     conn,
		outbound: make(chan wire.Frame, outboundBuffer),
		done:     make(chan struct{}),
		joined:   make(map[domain.RoomKey]struct{}),
	}
}

func (c *WSClient) UserID() domain.UserID {
	return c.id
}

func (c *WSClient) Send(event domain.Event) error {
	return c.enqueue(wire.FromEvent(event))
}

func (c *WSClient) SendEnvelope(env domain.Envelope) error {
	return c.enqueue(wire.FromEnvelope(env))
}

func (c *WSClient) SendText(msg domain.Message) error {
	return c.enqueue(wire.FromMessage(msg))
}

func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *WSClient) enqueue(f wire.Frame) error {
	select {
	case <-c.done:
		return errors.New("client closed")
	case c.outbound <- f:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *WSClient) trackJoin(key domain.RoomKey) {
	c.mu.Lock()
	c.joined[key] = struct{}{}
	c.mu.Unlock()
}

func (c *WSClient) trackLeave(key domain.RoomKey) {
	c.mu.Lock()
	delete(c.joined, key)
	c.mu.Unlock()
}

func (c *WSClient) joinedRooms() []domain.RoomKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]domain.RoomKey, 0, len(c.joined))
	for k := range c.joined {
		keys = append(keys, k)
	}
	return keys
}

// writePump owns all writes to the connection, including keepalive pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and runs the read loop. The identity is
// supplied by the auth layer in front of us; here it arrives as a query
// parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := domain.ParseUserID(r.URL.Query().Get("identity"))
	if err != nil {
		http.Error(w, "identity required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  maxMessageSize,
		WriteBufferSize: maxMessageSize,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(identity, conn)

	l := log.With().Str("client_id", identity.String()).Logger()
	l.Info().Msg("New client connected")

	// A reconnect supersedes the previous transport for this identity.
	if prev, superseded := h.Hub.Register(client); superseded {
		l.Info().Msg("Superseding previous connection")
		prev.Close()
	}

	go client.writePump()

	defer func() {
		client.Close()
		if err := h.Hub.Disconnect(r.Context(), client, client.joinedRooms()); err != nil {
			l.Error().Err(err).Msg("Disconnect cleanup failed")
		}
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame wire.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		h.dispatch(r, client, frame, l)
	}
}

func (h *Handler) dispatch(r *http.Request, client *WSClient, frame wire.Frame, l zerolog.Logger) {
	ctx := r.Context()
	id := client.UserID()

	switch frame.Type {
	case wire.TypeStartCall:
		target, err := domain.ParseUserID(frame.Target)
		if err != nil {
			l.Warn().Msg("start-call without target dropped")
			return
		}
		if err := h.Hub.StartCall(ctx, id, target); err != nil {
			l.Error().Err(err).Msg("Failed to start call")
		}

	case wire.TypeAcceptCall:
		if err := h.Hub.AcceptCall(ctx, id, domain.RoomKey(frame.RoomKey)); err != nil {
			l.Warn().Err(err).Msg("Failed to accept call")
		}

	case wire.TypeRejectCall:
		if err := h.Hub.RejectCall(ctx, id, domain.RoomKey(frame.RoomKey)); err != nil {
			l.Warn().Err(err).Msg("Failed to reject call")
		}

	case wire.TypeEndCall:
		if err := h.Hub.EndCall(ctx, id, domain.RoomKey(frame.RoomKey)); err != nil {
			l.Warn().Err(err).Msg("Failed to end call")
		}

	case wire.TypeJoinRoom:
		key, err := domain.NewRoomKeyFromString(frame.RoomKey)
		if err != nil {
			l.Warn().Msg("join-room with blank key dropped")
			return
		}
		if err := h.Hub.JoinRoom(ctx, key, id); err != nil {
			l.Error().Err(err).Msg("Failed to join room")
			return
		}
		client.trackJoin(key)

	case wire.TypeLeaveRoom:
		key := domain.RoomKey(frame.RoomKey)
		if err := h.Hub.LeaveRoom(ctx, key, id); err != nil {
			l.Error().Err(err).Msg("Failed to leave room")
			return
		}
		client.trackLeave(key)

	case wire.TypeSignal:
		env := domain.Envelope{
			RoomKey: domain.RoomKey(frame.RoomKey),
			Sender:  id, // never trust the frame's from field
			Signal:  domain.NewSignal(domain.SignalKind(frame.Kind), frame.Body),
		}
		if err := h.Hub.Relay(ctx, env); err != nil {
			l.Warn().Err(err).Msg("Signal dropped")
		}

	case wire.TypeChat:
		if err := h.ChatService.SendMessage(ctx, id, domain.RoomKey(frame.RoomKey), frame.Content); err != nil {
			l.Error().Err(err).Msg("Failed to process message")
		}

	default:
		l.Warn().Str("type", frame.Type).Msg("Unknown frame type")
	}
}
