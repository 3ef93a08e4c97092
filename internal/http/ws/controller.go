// Package ws serves the live chat channel. A connection joins and leaves
// trip rooms and posts messages; the hub pushes new messages back as
// chat:new frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sharedtrips/internal/chat"
	"sharedtrips/internal/domain"
	"sharedtrips/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	TypeJoin   = "chat:join"
	TypeLeave  = "chat:leave"
	TypePost   = "chat:post"
	TypePing   = "ping"
	TypeJoined = "chat:joined"
	TypeLeft   = "chat:left"
	TypeNew    = "chat:new"
	TypePong   = "pong"
	TypeError  = "error"
)

// Inbound is any frame a client sends.
type Inbound struct {
	Type     string `json:"type"`
	TripID   string `json:"tripId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Outbound is any frame the server sends.
type Outbound struct {
	Type    string              `json:"type"`
	TripID  string              `json:"tripId,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
}

type Options struct {
	ReadLimit      int64
	PongWait       time.Duration
	WriteWait      time.Duration
	AllowedOrigins []string
}

type Controller struct {
	ctx      context.Context
	hub      *chat.Hub
	opts     Options
	upgrader websocket.Upgrader
}

// NewController binds the controller to ctx; cancelling it closes every open
// connection.
func NewController(ctx context.Context, hub *chat.Hub, opts Options) *Controller {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}
	return &Controller{
		ctx:  ctx,
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Handle upgrades the request and serves the connection until it closes.
func (ctl *Controller) Handle(c *gin.Context) {
	conn, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	ctl.serve(newClient(uuid.NewString(), conn))
}

// serve runs the pumps for an accepted connection and blocks until it ends.
// Every room the client joined is left before serve returns.
func (ctl *Controller) serve(c *client) {
	log.Info().Str("module", "ws").Str("client", c.id).Msg("client connected")
	defer func() {
		rooms := ctl.hub.LeaveAll(c.id)
		c.Close()
		log.Info().Str("module", "ws").Str("client", c.id).Strs("rooms", rooms).Msg("client disconnected")
	}()

	go c.writePump(ctl.ctx, ctl.opts.WriteWait, ctl.opts.PongWait*9/10)
	ctl.readPump(c)
}

func (ctl *Controller) readPump(c *client) {
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "ws").Str("client", c.id).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleFrame(c, data)
	}
}

func (ctl *Controller) handleFrame(c *client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		ctl.sendJSON(c, Outbound{Type: TypeError, Error: "malformed frame", Code: "bad_request"})
		return
	}

	switch in.Type {
	case TypeJoin:
		ctl.handleJoin(c, in)
	case TypeLeave:
		ctl.hub.Leave(in.TripID, c.id)
		ctl.sendJSON(c, Outbound{Type: TypeLeft, TripID: in.TripID})
	case TypePost:
		ctl.handlePost(c, in)
	case TypePing:
		ctl.sendJSON(c, Outbound{Type: TypePong})
	default:
		log.Warn().Str("module", "ws").Str("type", in.Type).Msg("unknown frame")
		ctl.sendJSON(c, Outbound{Type: TypeError, Error: "unknown type " + in.Type, Code: "bad_request"})
	}
}

func (ctl *Controller) handleJoin(c *client, in Inbound) {
	tripID := in.TripID
	deliver := func(msg models.ChatMessage) error {
		frame, err := json.Marshal(Outbound{Type: TypeNew, TripID: msg.TripID, Message: &msg})
		if err != nil {
			return err
		}
		if err := c.TrySend(frame); err != nil {
			// a client that cannot keep up is dropped entirely
			c.Close()
			return err
		}
		return nil
	}
	// the ack is queued with the room locked so it precedes every chat:new
	_, err := ctl.hub.JoinNotify(tripID, c.id, deliver, func(sub *chat.Subscription) {
		ctl.sendJSON(c, Outbound{Type: TypeJoined, TripID: sub.TripID()})
	})
	if err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handlePost(c *client, in Inbound) {
	if _, err := ctl.hub.Post(ctl.ctx, in.TripID, in.UserID, in.UserName, in.Text); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) sendError(c *client, err error) {
	code := "internal_error"
	msg := err.Error()
	switch {
	case domain.IsValidation(err):
		code = "validation_error"
	case domain.IsNotFound(err):
		code = "not_found"
	case domain.IsRateLimited(err):
		code = "rate_limited"
	case errors.Is(err, chat.ErrHubClosed):
		code = "shutting_down"
	default:
		log.Error().Err(err).Str("module", "ws").Str("client", c.id).Msg("chat operation failed")
		msg = "internal server error"
	}
	ctl.sendJSON(c, Outbound{Type: TypeError, Error: msg, Code: code})
}

func (ctl *Controller) sendJSON(c *client, v Outbound) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("client", c.id).Str("type", v.Type).Msg("frame dropped")
	}
}
