// Package ws serves live conversation connections over websockets.
package ws

import (
	"bourracho/auth"
	"bourracho/domain"
	"bourracho/domain/event"
	"bourracho/errors"
	"bourracho/runtime"
	"bourracho/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/ratelimit"
)

type Config struct {
	ConnectionBufferSize int
	PingInterval         time.Duration
	IdleTimeout          time.Duration
	WriteTimeout         time.Duration
	FramesPerSecond      int
	MaxFrameBytes        int64
}

// Membership admits live connections under the conversation lock.
type Membership interface {
	services.IMembershipService
	Attach(ctx context.Context, conversationID, userID string, conn *runtime.Connection) error
}

// Consumer upgrades members of a conversation to a live connection.
// Outbound events come from the registry, inbound frames go to the services.
type Consumer struct {
	log        *slog.Logger
	membership Membership
	chat       services.IChatService
	registry   *runtime.Registry
	upgrader   websocket.Upgrader
	config     Config
}

func NewConsumer(log *slog.Logger, membership Membership, chat services.IChatService,
	registry *runtime.Registry, config Config) *Consumer {
	return &Consumer{
		log:        log,
		membership: membership,
		chat:       chat,
		registry:   registry,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// session is one upgraded websocket bound to one registry connection.
type session struct {
	consumer *Consumer
	ws       *websocket.Conn
	conn     *runtime.Connection
	replies  chan []byte
	log      *slog.Logger
}

// Serve handles GET /ws/chat/:id, behind the auth middleware.
func (c *Consumer) Serve(ctx *gin.Context) {
	conversationID := ctx.Param("id")
	userID := auth.MustUserID(ctx)

	// Attached before the upgrade: events queue on the connection until the
	// writer starts, and a membership change in between detaches it.
	conn := runtime.NewConnection(conversationID, userID, c.config.ConnectionBufferSize)
	if err := c.membership.Attach(ctx.Request.Context(), conversationID, userID, conn); err != nil {
		ctx.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"detail": err.Error(), "kind": errors.KindOf(err).String()})
		return
	}

	wsConn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Debug("Websocket upgrade failed", "conversation_id", conversationID, "error", err)
		c.registry.Detach(conversationID, conn)
		return
	}
	s := &session{
		consumer: c,
		ws:       wsConn,
		conn:     conn,
		replies:  make(chan []byte, 8),
		log:      c.log.With("conversation_id", conversationID, "user_id", userID, "connection_id", conn.ID),
	}
	s.log.Info("Live connection opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop()
	}()
	s.readLoop(context.WithoutCancel(ctx.Request.Context()))

	c.registry.Detach(conversationID, conn)
	<-done
	s.log.Info("Live connection closed")
}

// readLoop returns when the peer goes away, the read deadline expires or
// the write side closed the socket.
func (s *session) readLoop(ctx context.Context) {
	cfg := s.consumer.config
	if cfg.MaxFrameBytes > 0 {
		s.ws.SetReadLimit(cfg.MaxFrameBytes)
	}
	_ = s.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	s.ws.SetPongHandler(func(string) error {
		s.conn.Touch()
		return s.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	limiter := ratelimit.NewUnlimited()
	if cfg.FramesPerSecond > 0 {
		limiter = ratelimit.New(cfg.FramesPerSecond)
	}

	for {
		var frame inboundFrame
		if err := s.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", "error", err)
			}
			return
		}
		limiter.Take()
		s.conn.Touch()
		_ = s.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))

		if err := s.handle(ctx, frame); err != nil {
			s.replyError(err)
		}
	}
}

func (s *session) handle(ctx context.Context, frame inboundFrame) error {
	conversationID, userID := s.conn.ConversationID, s.conn.UserID
	switch frame.Type {
	case frameMessage:
		var payload messagePayload
		if err := decode(frame, &payload); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
		}
		_, err := s.consumer.chat.Post(ctx, conversationID, userID, payload.Content, nil)
		return err
	case frameMemberProfile:
		var payload memberProfilePayload
		if err := decode(frame, &payload); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
		}
		_, err := s.consumer.membership.UpdateMember(ctx, conversationID, userID,
			domain.MemberUpdate{Pseudo: payload.Pseudo, Smiley: payload.Smiley})
		return err
	case frameMetadata:
		var payload metadataPayload
		if err := decode(frame, &payload); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
		}
		update := domain.MetadataUpdate{Name: payload.Name, IsLocked: payload.IsLocked, IsVisible: payload.IsVisible}
		_, err := s.consumer.membership.UpdateMetadata(ctx, conversationID, update, userID)
		return err
	default:
		return fmt.Errorf("%w: unknown frame type %q", errors.ErrInvalidArgument, frame.Type)
	}
}

// replyError never blocks the read loop, a client not reading its errors loses them.
func (s *session) replyError(err error) {
	data, mErr := json.Marshal(errorFrame{Type: frameError, Detail: err.Error(), Kind: errors.KindOf(err).String()})
	if mErr != nil {
		return
	}
	select {
	case s.replies <- data:
	default:
		s.log.Warn("Error frame dropped", "error", err)
	}
}

// writeLoop is the only writer of the socket.
func (s *session) writeLoop() {
	cfg := s.consumer.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()

	for {
		select {
		case e := <-s.conn.Events():
			data, err := event.MarshalFrame(e)
			if err != nil {
				s.log.Error("Frame encoding failed", "kind", e.Kind(), "error", err)
				continue
			}
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.log.Debug("Write failed", "error", err)
				s.consumer.registry.Detach(s.conn.ConversationID, s.conn)
				return
			}
		case data := <-s.replies:
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.consumer.registry.Detach(s.conn.ConversationID, s.conn)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.consumer.registry.Detach(s.conn.ConversationID, s.conn)
				return
			}
		case <-s.conn.Closed():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "detached")
			_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(cfg.WriteTimeout))
			return
		}
	}
}

func (s *session) write(messageType int, data []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.consumer.config.WriteTimeout)); err != nil {
		return err
	}
	return s.ws.WriteMessage(messageType, data)
}
