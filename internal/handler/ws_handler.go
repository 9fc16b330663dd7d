package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/ws"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: check against CORS origins once mobile clients send a stable Origin
	},
}

// TokenResolver authenticates the handshake token
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (model.Principal, *auth.Claims, error)
}

// CareGiverChecker tells whether a doctor may follow a patient's readings
type CareGiverChecker interface {
	IsActiveCareGiver(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID) (bool, error)
}

// WSHandler handles realtime glycemia connections
type WSHandler struct {
	hub      *ws.Hub
	resolver TokenResolver
	team     CareGiverChecker
}

func NewWSHandler(hub *ws.Hub, resolver TokenResolver, team CareGiverChecker) *WSHandler {
	return &WSHandler{hub: hub, resolver: resolver, team: team}
}

// HandleGlycemia upgrades to a WebSocket subscribed to one account's readings.
// Client connects with: ws://host/ws/glycemia/?token=<jwt>[&patient_user_id=<uuid>]
// A patient follows their own readings; an active care-giver doctor may follow a patient's.
func (h *WSHandler) HandleGlycemia(c *gin.Context) {
	// Upgrade first so auth failures can be reported with a close code
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	p, _, err := h.resolver.Resolve(ctx, c.Query("token"))
	if err != nil {
		closeWith(conn, ws.CloseAuthFailed, "authentication failed")
		return
	}

	target := p.AccountID
	if raw := c.Query("patient_user_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "invalid patient_user_id")
			return
		}
		if patientID != p.AccountID {
			ok, err := h.team.IsActiveCareGiver(ctx, p, patientID)
			if err != nil {
				log.Error().Err(err).Str("account_id", p.AccountID.String()).Msg("care team check failed")
				closeWith(conn, websocket.CloseInternalServerErr, "internal error")
				return
			}
			if !ok {
				log.Warn().
					Str("account_id", p.AccountID.String()).
					Str("patient_account_id", patientID.String()).
					Msg("realtime subscription denied")
				closeWith(conn, ws.CloseForbidden, "forbidden")
				return
			}
			target = patientID
		}
	}

	client := ws.NewClient(h.hub, conn, p.AccountID, ws.GroupName(target))
	// the greeting goes first so no reading can overtake it
	if err := client.Greet(model.WSEnvelope{Type: model.WSConnectionEstablished, UserID: target.String()}); err != nil {
		log.Error().Err(err).Msg("failed to queue realtime greeting")
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !h.hub.Register(client) {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
