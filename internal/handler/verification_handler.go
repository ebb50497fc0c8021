package handler

import (
	"encoding/json"
	"errors"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/internal/pkg/serverutils"
	"zkcred-be/internal/session"
	internalWS "zkcred-be/internal/websocket"
	"zkcred-be/pkg/extractor"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Inbound channel events.
const (
	EventStartVerification = "start_verification"
	EventStartLegacy       = "start_leetcode_verification"
	EventPing              = "ping"
	EventPong              = "pong"

	defaultCredentialPortal = "nitw"
	defaultHandlePortal     = "leetcode"
)

// SessionStarter is the part of the orchestrator the channel needs.
type SessionStarter interface {
	Start(channelID string, req session.Request) (*session.Session, error)
	Cancel(channelID string)
}

type VerificationHandler struct {
	sessions  SessionStarter
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewVerificationHandler(sessions SessionStarter, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *VerificationHandler {
	return &VerificationHandler{
		sessions:  sessions,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs upgrades the request into a verification channel. A token is
// optional; when given it must be valid and binds the channel to its owner.
func (h *VerificationHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")
	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		if authHeader := c.Get("Authorization"); len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	ownerID := ""
	if tokenStr != "" {
		userID, err := serverutils.ParseUserID(h.jwtSecret, tokenStr)
		if err != nil {
			h.logger.Warn("VerificationHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}
		ownerID = userID
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("VerificationHandler", "Channel opened", map[string]interface{}{"owner_id": ownerID})
		internalWS.ServeWs(h.hub, conn, ownerID, h)
	})(c)
}

// OnMessage runs on the channel's read goroutine.
func (h *VerificationHandler) OnMessage(c *internalWS.Client, msg internalWS.Message) {
	switch msg.Event {
	case EventPing:
		c.Emit(EventPong, struct{}{})

	case EventStartVerification:
		var req dto.StartVerificationRequest
		if err := decode(msg.Data, &req); err != nil {
			h.reject(c, session.ReasonInvalidRequest, err)
			return
		}
		h.start(c, toSessionRequest(req, c.OwnerID))

	case EventStartLegacy:
		var req dto.LegacyLeetcodeRequest
		if err := decode(msg.Data, &req); err != nil {
			h.reject(c, session.ReasonInvalidRequest, err)
			return
		}
		h.start(c, session.Request{
			Portal:  defaultHandlePortal,
			Auth:    extractor.Auth{Username: req.Username},
			OwnerID: owner(c.OwnerID, req.FirebaseUid),
		})

	default:
		c.Emit(session.EventError, session.ErrorData{
			Message: "Unknown event: " + msg.Event,
			Reason:  session.ReasonInvalidRequest,
		})
	}
}

// OnClose cancels whatever the channel was running.
func (h *VerificationHandler) OnClose(c *internalWS.Client) {
	h.sessions.Cancel(c.ID)
	h.logger.Info("VerificationHandler", "Channel closed", map[string]interface{}{"channel_id": c.ID})
}

func (h *VerificationHandler) start(c *internalWS.Client, req session.Request) {
	s, err := h.sessions.Start(c.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionActive):
			h.reject(c, session.ReasonSessionActive, err)
		case errors.Is(err, session.ErrUnknownPortal), errors.Is(err, session.ErrInvalidRequest):
			h.reject(c, session.ReasonInvalidRequest, err)
		default:
			h.reject(c, session.ReasonInternal, err)
		}
		return
	}
	go forward(c, s.Outbox())
}

func (h *VerificationHandler) reject(c *internalWS.Client, reason session.ErrorReason, err error) {
	h.logger.Warn("VerificationHandler", "Request rejected", map[string]interface{}{
		"channel_id": c.ID,
		"reason":     string(reason),
		"error":      err.Error(),
	})
	c.Emit(session.EventError, session.ErrorData{Message: err.Error(), Reason: reason})
}

// forward copies one session's outbox onto the channel. Ordered events wait
// for buffer space; frames are dropped when the channel is behind.
func forward(c *internalWS.Client, out *session.Outbox) {
	events := out.Events()
	for {
		select {
		case <-c.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := internalWS.Encode(ev.Name, ev.Data)
			if err != nil {
				continue
			}
			if !c.Enqueue(payload) {
				return
			}
		case jpeg := <-out.Frames():
			if payload, err := internalWS.Encode(session.EventFrame, jpeg); err == nil {
				c.TryEnqueue(payload)
			}
		}
	}
}

func decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing event data")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("malformed event data")
	}
	if err := serverutils.ValidateRequest(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errors.New(serverutils.ValidationMessage(verrs))
		}
		return err
	}
	return nil
}

func toSessionRequest(req dto.StartVerificationRequest, tokenOwner string) session.Request {
	out := session.Request{Portal: req.Portal, OwnerID: owner(tokenOwner, req.OwnerId)}
	if req.Credentials != nil {
		out.Auth = extractor.Auth{Username: req.Credentials.Username, Password: req.Credentials.Password}
		if out.Portal == "" {
			out.Portal = defaultCredentialPortal
		}
	} else {
		out.Auth = extractor.Auth{Username: req.Handle}
		if out.Portal == "" {
			out.Portal = defaultHandlePortal
		}
	}
	return out
}

// The token owner wins over anything the client claims.
func owner(tokenOwner, claimed string) string {
	if tokenOwner != "" {
		return tokenOwner
	}
	return claimed
}

// RegisterRoutes registers the verification channel.
func (h *VerificationHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
