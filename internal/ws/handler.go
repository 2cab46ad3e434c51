package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/errs"
	"messaging-service/internal/id"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Verifier turns a bearer token into the identity it carries.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// ProfileRecorder stores the display identity of a connecting user.
type ProfileRecorder interface {
	RememberProfile(ctx context.Context, profile models.Profile) error
}

type HandlerConfig struct {
	Hub            *Hub
	Dispatcher     *Dispatcher
	Verifier       Verifier
	Profiles       ProfileRecorder
	SendBuffer     int
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler upgrades authenticated requests to live connections.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	verifier   Verifier
	profiles   ProfileRecorder
	sendBuffer int
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Handler{
		hub:        cfg.Hub,
		dispatcher: cfg.Dispatcher,
		verifier:   cfg.Verifier,
		profiles:   cfg.Profiles,
		sendBuffer: buffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(cfg.AllowedOrigins),
		},
		logger: logger,
	}
}

// Handle authenticates the request, upgrades it and serves the connection
// until it closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := auth.TokenFromHeader(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": errs.Public(err)})
		return
	}

	if h.profiles != nil {
		if err := h.profiles.RememberProfile(ctx, identity.Profile()); err != nil {
			h.logger.WarnContext(ctx, "failed to store profile", "user_id", identity.UserID, "error", err)
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	info := ConnInfo{
		RequestMeta: observability.MetaFromRequest(c.Request),
		ConnID:      "conn-" + id.Generate(),
		UserID:      identity.UserID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(info, identity, conn, h.sendBuffer)

	// the request context ends with this handler; keep its values only
	connCtx := context.WithoutCancel(ctx)
	h.hub.Register(connCtx, client)
	go client.writePump()
	go h.serve(connCtx, client)
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	err := client.readPump(ctx, h.dispatcher.Dispatch)
	reason := ""
	if err != nil {
		reason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && client.State() != StateDisconnected {
			h.logger.WarnContext(ctx, "websocket read failed", "conn_id", client.ID(), "user_id", client.info.UserID, "error", err)
			h.hub.publish(ctx, client.info, eventError, reason)
		}
	}
	h.hub.Unregister(ctx, client, reason)
}

// checkOrigin allows any origin when allowed is empty.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
