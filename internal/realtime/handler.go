package realtime

import (
	"context"
	"errors"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"net/http"
	"strings"
	"time"
)

// Authenticator resolves an access token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (storage.User, error)
}

// Chats persists chats sent over the socket
type Chats interface {
	AppendChat(ctx context.Context, conversationID, senderID, content string, at time.Time) (conversation.Appended, error)
}

// Handler upgrades authenticated requests and serves the chat protocol
type Handler struct {
	logger   *zap.SugaredLogger
	auth     Authenticator
	chats    Chats
	registry Registry
	upgrader websocket.Upgrader
	parsers  fastjson.ParserPool
	cfg      config
}

func NewHandler(logger *zap.SugaredLogger, authenticator Authenticator, chats Chats, registry Registry, opts ...Option) *Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	return &Handler{
		logger:   logger,
		auth:     authenticator,
		chats:    chats,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.checkOrigin,
		},
		cfg: cfg,
	}
}

// token reads the access token from the Authorization header or the token query parameter
func token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// refuse answers a failed handshake with {"message": msg}
func refuse(w http.ResponseWriter, status int, msg string) {
	var a fastjson.Arena
	o := a.NewObject()
	o.Set("message", a.NewString(msg))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(o.MarshalTo(nil))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := zapadapter.IDFromContext(ctx); !ok {
		ctx = zapadapter.NewContextWithID(ctx, xid.New().String())
	}
	logger := zapadapter.WithRequestID(ctx, h.logger)

	t := token(r)
	if t == "" {
		refuse(w, http.StatusUnauthorized, "Unauthorized request")
		return
	}

	u, err := h.auth.Authenticate(ctx, t)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		refuse(w, http.StatusUnauthorized, "jwt expired")
		return
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrUnknownUser):
		refuse(w, http.StatusUnauthorized, "Invalid token")
		return
	case err != nil:
		logger.Errorf("Authenticating socket: %v", err)
		refuse(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logger.Debugf("Upgrading connection of user (%s): %v", u.ID, err)
		return
	}

	c := newClient(logger, u.ID, conn, h.cfg.sendBuffer)
	h.registry.Join(u.ID, c)
	logger.Debugf("User (%s) connected", u.ID)

	go c.writePump(h.cfg.writeWait, h.cfg.pingPeriod())

	h.readPump(ctx, c)

	h.registry.Leave(u.ID, c)
	c.close()
	logger.Debugf("User (%s) disconnected", u.ID)
}

// readPump handles frames of c one at a time until the connection fails
func (h *Handler) readPump(ctx context.Context, c *Client) {
	c.conn.SetReadLimit(h.cfg.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugf("Reading from user (%s): %v", c.userID, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.pongWait))

		h.handle(ctx, c, data)
	}
}

func (h *Handler) reply(c *Client, data ChatError) {
	b, err := frame(EventChatError, data)
	if err != nil {
		c.logger.Errorf("Marshaling %s: %v", EventChatError, err)
		return
	}
	c.Send(b)
}

// handle dispatches a single inbound frame
func (h *Handler) handle(ctx context.Context, c *Client, data []byte) {
	parser := h.parsers.Get()
	defer h.parsers.Put(parser)

	v, err := parser.ParseBytes(data)
	if err != nil {
		h.reply(c, ChatError{Message: "Malformed JSON"})
		return
	}

	event := string(v.GetStringBytes("event"))
	if event != EventChatNew {
		h.reply(c, ChatError{Message: "Unknown event"})
		return
	}

	conversationID := string(v.GetStringBytes("data", "conversationId"))
	to := string(v.GetStringBytes("data", "to"))
	clientID := string(v.GetStringBytes("data", "message", "id"))
	text := string(v.GetStringBytes("data", "message", "text"))

	ctx, cancel := context.WithTimeout(ctx, h.cfg.handleTimeout)
	defer cancel()

	appended, err := h.chats.AppendChat(ctx, conversationID, c.userID, text, time.Time{})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			c.logger.Errorf("Appending chat to conversation (%s): %v", conversationID, err)
		}
		h.reply(c, ChatError{Message: apperr.MessageOf(err), ConversationID: conversationID, ID: clientID})
		return
	}

	if to != "" && to != appended.Recipient {
		c.logger.Warnf("User (%s) addressed (%s) in conversation (%s) with (%s)", c.userID, to, conversationID, appended.Recipient)
	}

	n, err := Publish(h.registry, conversationID, appended)
	if err != nil {
		c.logger.Errorf("Publishing chat (%s): %v", appended.Chat.ID, err)
		return
	}
	c.logger.Debugf("Chat (%s) delivered to %d connections of user (%s)", appended.Chat.ID, n, appended.Recipient)
}
