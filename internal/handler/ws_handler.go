package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/middleware"
	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stemsi/cbt-gateway/internal/response"
	"github.com/stemsi/cbt-gateway/internal/service"
	"github.com/stemsi/cbt-gateway/internal/validator"
	ws "github.com/stemsi/cbt-gateway/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the countdown of the live attempt and accepts exam
// actions over a WebSocket.
type WSHandler struct {
	authService    *service.AuthService
	attemptService *service.AttemptService
	tickInterval   time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	authService *service.AuthService,
	attemptService *service.AttemptService,
	tickInterval time.Duration,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		authService:    authService,
		attemptService: attemptService,
		tickInterval:   tickInterval,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/candidate/exam/stream?token=...
// Pushes a tick event every second and one submitted event when the attempt
// ends, whether the candidate or the timer submitted it.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sess := middleware.GetSession(c)
	if claims == nil || sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	watch, err := h.attemptService.Watch(sess)
	if err != nil {
		fail(c, mapError(err))
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("candidate_id", sess.Candidate.ID).Logger()
	wsLog.Info().Msg("Candidate connected")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pushTicks(ctx, conn, watch)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		var msg ws.RequestEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		// Every action re-checks the session so a newer login elsewhere
		// takes over this connection's rights too.
		current, err := h.authService.Session(ctx, claims)
		if err != nil {
			e := mapError(err)
			_ = conn.WriteError(e.code, "")
			return
		}

		h.handleAction(ctx, conn, wsLog, current, msg)
	}
}

func (h *WSHandler) handleAction(ctx context.Context, conn *ws.Conn, log zerolog.Logger, sess *model.Session, msg ws.RequestEnvelope) {
	switch msg.Action {
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	case ws.ActionState:
		snap, err := h.attemptService.State(sess)
		if err != nil {
			writeMapped(conn, mapError(err))
			return
		}
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: *snap})

	case ws.ActionAnswer:
		var req model.SetAnswerRequest
		if fields := validator.BindRaw(msg.Payload, &req); fields != nil {
			_ = conn.WriteFields(fields)
			return
		}
		snap, err := h.attemptService.Answer(ctx, sess, req)
		if err != nil {
			writeMapped(conn, mapError(err))
			return
		}
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: *snap})

	case ws.ActionNavigate:
		var req model.NavigateRequest
		if fields := validator.BindRaw(msg.Payload, &req); fields != nil {
			_ = conn.WriteFields(fields)
			return
		}
		snap, err := h.attemptService.Navigate(sess, req)
		if err != nil {
			writeMapped(conn, mapError(err))
			return
		}
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: *snap})

	case ws.ActionSubmit:
		// The submitted event itself comes from the tick pusher once the
		// attempt is done, so manual and forced submissions look the same.
		if _, err := h.attemptService.Submit(ctx, sess); err != nil {
			writeMapped(conn, mapSubmitError(err))
		}

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(response.ErrInvalidPayload, "unknown action: "+string(msg.Action))
	}
}

func (h *WSHandler) pushTicks(ctx context.Context, conn *ws.Conn, watch *service.Watch) {
	ticker := time.NewTicker(h.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watch.Ended():
			return
		case <-watch.Done():
			_ = conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, State: watch.Snapshot()})
			return
		case <-ticker.C:
			snap := watch.Snapshot()
			if err := conn.WriteTyped(ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: snap.RemainingSeconds,
				Expired:          snap.Expired,
			}); err != nil {
				return
			}
		}
	}
}

func writeMapped(conn *ws.Conn, e apiError) {
	_ = conn.WriteError(e.code, e.detail)
}
