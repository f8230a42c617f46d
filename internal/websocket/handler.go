package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/auth"
	"github.com/ammar1510/docconnect/internal/chat"
	"github.com/ammar1510/docconnect/internal/config"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/metrics"
	"github.com/ammar1510/docconnect/internal/notification"
	"github.com/ammar1510/docconnect/internal/presence"
	"github.com/ammar1510/docconnect/internal/protocol"
)

// Options tune the connection lifecycle
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// OptionsFrom maps the websocket config section onto gateway options
func OptionsFrom(cfg config.WebSocket, allowedOrigins []string) Options {
	return Options{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		AllowedOrigins: allowedOrigins,
	}
}

// DefaultOptions match the config defaults
func DefaultOptions() Options {
	return Options{
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
		RateLimit:      2,
		RateBurst:      20,
	}
}

// Client represents a connected websocket client
type Client struct {
	ID      string
	UserID  uuid.UUID
	Socket  *websocket.Conn
	Send    chan []byte
	rooms   map[uuid.UUID]struct{}
	limiter *rate.Limiter
}

// Gateway upgrades authenticated requests and runs the realtime protocol
type Gateway struct {
	manager       *Manager
	presence      *presence.Tracker
	chat          *chat.Service
	notifications *notification.Service
	users         database.UserStore
	opts          Options
	upgrader      websocket.Upgrader
}

func NewGateway(manager *Manager, tracker *presence.Tracker, chatSvc *chat.Service, notifications *notification.Service, users database.UserStore, opts Options) *Gateway {
	g := &Gateway{
		manager:       manager,
		presence:      tracker,
		chat:          chatSvc,
		notifications: notifications,
		users:         users,
		opts:          opts,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{"jwt"},
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.Warn("Rejected websocket origin %s", origin)
	return false
}

// tokenFromRequest looks at the query string, the Authorization header and
// the "jwt, <token>" subprotocol, in that order
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	parts := websocket.Subprotocols(r)
	if len(parts) == 2 && parts[0] == "jwt" {
		return parts[1]
	}
	return ""
}

// HandleWebSocket handles websocket requests from clients
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	userID, _, err := auth.Authenticate(tokenFromRequest(c.Request))
	if err != nil {
		log.Warn("Rejected websocket from %s: %v", c.Request.RemoteAddr, err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid or missing token"})
		return
	}

	user, err := g.users.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		log.Warn("Rejected websocket for unknown or inactive user %s", userID)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": apperr.ErrAccountInactive.Error()})
		return
	}

	log.Debug("Upgrading connection to WebSocket for %s", c.Request.RemoteAddr)
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:      ulid.Make().String(),
		UserID:  userID,
		Socket:  conn,
		Send:    make(chan []byte, g.opts.SendBuffer),
		rooms:   make(map[uuid.UUID]struct{}),
		limiter: rate.NewLimiter(rate.Limit(g.opts.RateLimit), g.opts.RateBurst),
	}
	g.manager.register(client)

	go client.writePump(g.opts)
	go g.serve(client)
}

// serve brings a fresh connection up to date and then reads from it
func (g *Gateway) serve(c *Client) {
	ctx := context.Background()

	if _, err := g.presence.Connect(ctx, c.UserID, c.ID); err != nil {
		log.Error("Presence connect failed for %s: %v", c.UserID, err)
	}
	if n, err := g.notifications.Flush(ctx, c.UserID); err != nil {
		log.Error("Failed to flush offline queue for %s: %v", c.UserID, err)
	} else if n > 0 {
		log.Debug("Flushed %d queued notifications to client %s", n, c.ID)
	}
	if _, err := g.chat.DeliverPending(ctx, c.UserID); err != nil {
		log.Error("Failed to deliver pending messages for %s: %v", c.UserID, err)
	}

	c.readPump(g)
}

func (c *Client) reply(m *Manager, ev protocol.Outbound) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error("Failed to encode %s for client %s: %v", ev.EventName(), c.ID, err)
		return
	}
	m.sendTo(c, frame)
}

func (c *Client) replyError(m *Manager, event string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Error("Event %s from client %s failed: %v", event, c.ID, err)
	}
	c.reply(m, protocol.Error{Message: apperr.PublicMessage(err), Event: event})
}

// readPump pumps messages from the websocket connection to the gateway.
// Any read failure, heartbeat timeouts included, ends in a disconnect.
func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.manager.unregister(c)
		if _, err := g.presence.Disconnect(context.Background(), c.UserID, c.ID); err != nil {
			log.Error("Presence disconnect failed for %s: %v", c.UserID, err)
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(g.opts.MaxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(g.opts.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.EventsReceived.WithLabelValues("any", "rate_limited").Inc()
			c.reply(g.manager, protocol.Error{Message: "too many events, slow down"})
			continue
		}

		ev, name, err := protocol.DecodeInbound(raw)
		if err != nil {
			metrics.EventsReceived.WithLabelValues(eventLabel(name), "invalid").Inc()
			c.replyError(g.manager, name, err)
			continue
		}

		log.Debug("Received %s from client %s", name, c.ID)
		if err := g.dispatch(c, ev); err != nil {
			metrics.EventsReceived.WithLabelValues(name, "error").Inc()
			c.replyError(g.manager, name, err)
			continue
		}
		metrics.EventsReceived.WithLabelValues(name, "ok").Inc()
	}
}

// eventLabel keeps the metric cardinality bounded for garbage event names
func eventLabel(name string) string {
	if !protocol.KnownInbound(name) {
		return "unknown"
	}
	return name
}

// writePump pumps messages from the manager to the websocket connection
func (c *Client) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
