package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/api/middleware"
	"github.com/GriffinCanCode/omnik/internal/domain/chat"
	"github.com/GriffinCanCode/omnik/internal/domain/session"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/shared/id"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	writeDeadline  = 10 * time.Second
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256
)

// Frame types
const (
	TypeMessage  = "message"
	TypeSelect   = "select"
	TypePing     = "ping"
	TypeSystem   = "system"
	TypeOutput   = "output"
	TypeResponse = "response"
	TypeError    = "error"
	TypePong     = "pong"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Sessions resolves which session a frame addresses.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	GetActiveSession(ctx context.Context, owner int64) (*types.Session, error)
}

// Handler manages WebSocket connections
type Handler struct {
	sessions Sessions
	chat     *chat.Service
	limiter  *middleware.MessageLimiter
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler. Limiter and metrics may be nil.
func NewHandler(sessions Sessions, chatSvc *chat.Service, limiter *middleware.MessageLimiter, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		chat:     chatSvc,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger.Named("ws"),
	}
}

// conn is one client connection. Writes go through send so that only the
// write pump touches the socket.
type conn struct {
	id     string
	owner  int64
	ws     *websocket.Conn
	send   chan []byte
	busy   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	turns     sync.WaitGroup
}

// HandleConnection upgrades the request and serves frames until the client
// goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	cn := &conn{
		id:     id.NewConnID().String(),
		owner:  middleware.OwnerID(c),
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		busy:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	logger := h.logger.With(zap.String("conn_id", cn.id), zap.Int64("owner", cn.owner))
	logger.Info("WebSocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(cn)
	}()

	h.emit(cn, types.WSMessage{Type: TypeSystem, Text: "Connected to omnik", Data: gin.H{"conn_id": cn.id}})
	h.readPump(cn, logger)

	cn.cancel()
	cn.turns.Wait()
	close(cn.send)
	<-done
	logger.Info("WebSocket disconnected")
}

func (h *Handler) readPump(cn *conn, logger *zap.Logger) {
	cn.ws.SetReadLimit(maxFrameSize)
	_ = cn.ws.SetReadDeadline(time.Now().Add(readDeadline))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(readDeadline))

		var msg types.WSMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.emitError(cn, "", "invalid frame")
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.dispatch(cn, msg)
	}
}

func (h *Handler) writePump(cn *conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		cn.ws.Close()
	}()

	for {
		select {
		case data, ok := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = cn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				cn.cancel()
				return
			}
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				cn.cancel()
				return
			}
		}
	}
}

func (h *Handler) dispatch(cn *conn, msg types.WSMessage) {
	switch msg.Type {
	case TypePing:
		h.emit(cn, types.WSMessage{Type: TypePong})
	case TypeMessage:
		if err := utils.ValidateMessage(msg.Text); err != nil {
			h.emitError(cn, msg.SessionID, err.Error())
			return
		}
		h.startTurn(cn, msg, func(ctx context.Context, sessionID string, onUnit chat.UnitFunc) (*chat.Reply, error) {
			return h.chat.Send(ctx, cn.owner, sessionID, msg.Text, onUnit)
		})
	case TypeSelect:
		option, err := utils.ParseOption(msg.Option)
		if err != nil {
			h.emitError(cn, msg.SessionID, err.Error())
			return
		}
		h.startTurn(cn, msg, func(ctx context.Context, sessionID string, onUnit chat.UnitFunc) (*chat.Reply, error) {
			return h.chat.Select(ctx, cn.owner, sessionID, option, onUnit)
		})
	default:
		h.emitError(cn, msg.SessionID, "unknown message type")
	}
}

type turnFunc func(ctx context.Context, sessionID string, onUnit chat.UnitFunc) (*chat.Reply, error)

// startTurn runs turn in the background so that pings keep flowing while
// the reply streams
func (h *Handler) startTurn(cn *conn, msg types.WSMessage, turn turnFunc) {
	if !h.limiter.Allow(cn.owner) {
		h.emitError(cn, msg.SessionID, "too many messages, slow down")
		return
	}

	select {
	case cn.busy <- struct{}{}:
	default:
		h.emitError(cn, msg.SessionID, "a message is already in progress")
		return
	}

	cn.turns.Add(1)
	go func() {
		defer cn.turns.Done()
		defer func() { <-cn.busy }()

		sessionID, err := h.resolve(cn, msg.SessionID)
		if err != nil {
			h.emitError(cn, msg.SessionID, err.Error())
			return
		}

		reply, err := turn(cn.ctx, sessionID, func(unit string) {
			h.emit(cn, types.WSMessage{Type: TypeOutput, SessionID: sessionID, Text: unit})
		})
		if err != nil {
			h.emitError(cn, sessionID, err.Error())
			return
		}
		h.emit(cn, types.WSMessage{Type: TypeResponse, SessionID: sessionID, Data: reply})
	}()
}

// resolve picks the addressed session, falling back to the owner's active
// one, and hides sessions owned by someone else
func (h *Handler) resolve(cn *conn, sessionID string) (string, error) {
	if sessionID == "" {
		sess, err := h.sessions.GetActiveSession(cn.ctx, cn.owner)
		if err != nil {
			return "", err
		}
		return sess.ID, nil
	}
	if err := utils.ValidateID(sessionID, "session_id", true); err != nil {
		return "", err
	}
	sess, err := h.sessions.GetSession(cn.ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.OwnerID != cn.owner {
		return "", session.ErrSessionNotFound
	}
	return sess.ID, nil
}

func (h *Handler) emitError(cn *conn, sessionID, text string) {
	h.emit(cn, types.WSMessage{Type: TypeError, SessionID: sessionID, Error: text})
}

// emit queues a frame. Frames for a connection whose buffer is full are
// dropped.
func (h *Handler) emit(cn *conn, msg types.WSMessage) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if cn.ctx.Err() != nil {
		return
	}
	select {
	case cn.send <- data:
		h.metrics.RecordWSMessage("out", msg.Type)
	default:
		h.logger.Warn("Dropping frame for slow client",
			zap.String("conn_id", cn.id),
			zap.String("type", msg.Type))
	}
}
