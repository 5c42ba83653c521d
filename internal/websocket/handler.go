package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/directory"
	"tutorhub/internal/hub"
	"tutorhub/internal/router"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// All origins allowed; deployments front this with their own origin
		// policy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to participant channels. It resolves the
// durable profile (creating one on first contact), loads the replay history,
// registers the participant through the hub and then pumps inbound frames
// into the routing core.
type Handler struct {
	messageHub    *hub.Hub
	messageRouter *router.Router
	store         interfaces.ProfileStore
	cfg           *config.WebSocketConfig
}

// NewHandler creates a websocket handler.
func NewHandler(messageHub *hub.Hub, messageRouter *router.Router, store interfaces.ProfileStore, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		messageHub:    messageHub,
		messageRouter: messageRouter,
		store:         store,
		cfg:           cfg,
	}
}

// HandleWebSocket handles a connection request. Identity comes from the
// username query parameter; the tutor flag only matters on first contact,
// when the durable profile is created.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !types.IsValidUsername(username) {
		http.Error(w, types.ErrInvalidUsername.Error(), http.StatusBadRequest)
		return
	}
	asTutor := r.URL.Query().Get("tutor") == "true"

	ctx := r.Context()
	profile, err := h.store.GetProfile(ctx, username)
	switch {
	case errors.Is(err, types.ErrParticipantNotFound):
		profile = &types.Profile{Username: username, Tutor: asTutor}
		if err := h.store.CreateProfile(ctx, profile); err != nil {
			slog.Error("profile creation failed", "username", username, "error", err)
			http.Error(w, ErrProfileLoad.Error(), http.StatusInternalServerError)
			return
		}
	case err != nil:
		slog.Error("profile load failed", "username", username, "error", err)
		http.Error(w, ErrProfileLoad.Error(), http.StatusInternalServerError)
		return
	}

	history, err := h.store.MessagesFor(ctx, username)
	if err != nil {
		// Replay is best-effort; the participant still connects.
		slog.Warn("history load failed", "username", username, "error", err)
		history = nil
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "username", username, "error", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout, h.cfg.PingInterval)

	participant := &directory.Participant{
		Profile:  profile,
		Channel:  wsConn,
		Messages: history,
	}

	if err := h.messageHub.Connect(participant); err != nil {
		if errors.Is(err, types.ErrDuplicateSession) {
			slog.Warn("duplicate session rejected", "username", username)
			_ = wsConn.SendMessage(&types.Message{
				Command:     types.CommandMessage,
				FromProfile: types.SystemSender,
				ToProfile:   username,
				Content:     "already connected elsewhere",
			})
		} else {
			slog.Error("connection registration failed", "username", username, "error", err)
		}
		_ = wsConn.Close()
		return
	}

	go h.readLoop(wsConn, username)
}

// readLoop pumps inbound frames until the connection dies, then reports the
// departure. Binary frames become the sender's pending file buffer; text
// frames are decoded, stamped with the authenticated identity, and queued
// for routing.
func (h *Handler) readLoop(conn *Connection, username string) {
	defer func() {
		if err := h.messageHub.Disconnect(conn); err != nil {
			slog.Warn("disconnect event dropped", "username", username, "error", err)
		}
		_ = conn.Close()
	}()

	_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("connection read failed", "username", username, "error", err)
			}
			return
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			if err := h.messageRouter.AttachFilePayload(conn, data); err != nil {
				slog.Warn("file payload dropped", "username", username, "error", err)
			}

		case websocket.TextMessage:
			var msg types.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("malformed message ignored", "username", username, "error", err)
				continue
			}
			// The sender identity always comes from the authenticated
			// connection, never from the payload.
			msg.FromProfile = username
			if !types.IsValidCommand(msg.Command) {
				slog.Debug("unrecognized command received", "username", username, "command", msg.Command)
			}
			if err := h.messageHub.Submit(&msg); err != nil {
				slog.Warn("inbound message dropped", "username", username, "error", err)
			}
		}
	}
}
