package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/auth"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

const maxMessageSize = 64 << 10

type WSHandler struct {
	service  *app.ShowService
	tokens   *auth.Issuer
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ShowService, tokens *auth.Issuer, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// conn is one websocket observer. It starts unjoined; joinRoom binds it to
// a room and session id, and a later joinRoom rebinds it.
type conn struct {
	h    *WSHandler
	ctx  context.Context
	send chan outboundMessage[any]

	closing    chan struct{}
	forwarders sync.WaitGroup

	room   string
	sid    string
	role   domain.Role
	cancel func()
}

// ServeWS upgrades HTTP requests to websockets and runs the intent protocol.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	c := &conn{
		h:       h,
		ctx:     r.Context(),
		send:    make(chan outboundMessage[any], 64),
		closing: make(chan struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range c.send {
			if failed {
				continue
			}
			if err := ws.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("sid", c.sid).Msg("ws write error")
				failed = true
				// unblocks the reader
				_ = ws.Close()
			}
		}
	}()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
		c.handle(msg)
	}

	c.leave()
	close(c.closing)
	c.forwarders.Wait()
	close(c.send)
	<-writerDone
}

func (c *conn) handle(msg inboundMessage) {
	switch msg.Type {
	case intentJoinRoom:
		if err := c.join(msg); err != nil {
			c.send <- c.ack(msg, nil, err)
		}
		return
	case intentCreateRoom:
		code, err := c.h.service.CreateRoom(c.ctx)
		if err != nil {
			c.send <- c.ack(msg, nil, err)
			return
		}
		c.send <- c.ack(msg, createResult{Room: code}, nil)
		return
	}
	if c.room == "" {
		c.send <- c.ack(msg, nil, fmt.Errorf("%w: join a room first", domain.ErrParticipantNotFound))
		return
	}
	result, err := c.dispatch(msg)
	c.send <- c.ack(msg, result, err)
}

func (c *conn) ack(msg inboundMessage, result any, err error) outboundMessage[any] {
	switch {
	case err == nil:
		log.Debug().Str("room", c.room).Str("sid", c.sid).Str("intent", msg.Type).Msg("intent ok")
	case app.IsContention(err):
		log.Debug().Str("room", c.room).Str("sid", c.sid).Str("intent", msg.Type).Msg(err.Error())
	default:
		log.Debug().Err(err).Str("room", c.room).Str("sid", c.sid).Str("intent", msg.Type).Msg("intent rejected")
	}
	return ack(msg, result, err)
}

func (c *conn) dispatch(msg inboundMessage) (any, error) {
	svc, ctx, room, sid := c.h.service, c.ctx, c.room, c.sid
	switch msg.Type {
	case intentGetQuestions:
		var p getQuestionsPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		typ, err := domain.ParseQuestionType(p.Type)
		if err != nil {
			return nil, err
		}
		return svc.LoadQuestions(ctx, room, sid, typ, p.Count)
	case intentStartRound:
		var p startRoundPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		typ, err := domain.ParseQuestionType(p.RoundType)
		if err != nil {
			return nil, err
		}
		return svc.StartRound(ctx, room, sid, typ)
	case intentStartQuestion:
		var p startQuestionPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		pick, err := pickID(p.Question)
		if err != nil {
			return nil, err
		}
		q, err := svc.StartQuestion(ctx, room, sid, pick)
		if err != nil {
			return nil, err
		}
		return struct {
			Question string `json:"question"`
		}{q.ID}, nil
	case intentSubmitAnswer:
		var p submitAnswerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svc.SubmitAnswer(ctx, room, sid, p.Answer)
	case intentBuzz:
		return nil, svc.Buzz(ctx, room, sid)
	case intentResetBuzzer:
		var opts game.ResetOptions
		if err := decode(msg.Payload, &opts); err != nil {
			return nil, err
		}
		return nil, svc.ResetBuzzer(ctx, room, sid, opts)
	case intentRevealNextStep:
		idx, err := svc.RevealNextStep(ctx, room, sid)
		if err != nil {
			return nil, err
		}
		return revealStepResult{RevealedStepIndex: idx}, nil
	case intentRevealAnswer:
		defaults, err := svc.RevealAnswer(ctx, room, sid)
		if err != nil {
			return nil, err
		}
		return revealResult{DefaultQuestionScores: defaults}, nil
	case intentRevealSequenceAnswer:
		defaults, err := svc.RevealSequenceAnswer(ctx, room, sid)
		if err != nil {
			return nil, err
		}
		return revealResult{DefaultQuestionScores: defaults}, nil
	case intentConfirmPoints:
		var p confirmPointsPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		applied, exhausted, err := svc.ConfirmScores(ctx, room, sid, p.Overrides)
		if err != nil {
			return nil, err
		}
		return confirmResult{Applied: applied, Exhausted: exhausted}, nil
	case intentEndRound:
		return svc.EndRound(ctx, room, sid)
	case intentShowFullLeaderboard:
		return svc.ShowFullLeaderboard(ctx, room, sid)
	case intentEndShow:
		return svc.EndShow(ctx, room, sid)
	}
	return nil, fmt.Errorf("%w: unsupported intent %q", errBadRequest, msg.Type)
}

// join resolves the session id (resumed from a token or fresh), joins the
// room and starts forwarding its events. The ack is queued before any room
// event so the client learns its sid first.
func (c *conn) join(msg inboundMessage) error {
	var p joinPayload
	if err := decode(msg.Payload, &p); err != nil {
		return err
	}
	room := game.NormalizeCode(p.Room)
	if room == "" {
		return fmt.Errorf("%w: room is required", errBadRequest)
	}
	role, ok := domain.ParseRole(p.Role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", errBadRequest, p.Role)
	}

	sid := auth.NewSessionID()
	if p.Token != "" {
		claims, err := c.h.tokens.Parse(room, p.Token)
		if err != nil {
			return err
		}
		if claims.Role != role {
			return fmt.Errorf("%w: token was issued for %s", domain.ErrForbidden, claims.Role)
		}
		sid = claims.SID
	}

	player, sub, cancel, err := c.h.service.Join(c.ctx, room, sid, p.Name, role)
	if err != nil {
		return err
	}
	token, err := c.h.tokens.Issue(room, sid, role)
	if err != nil {
		cancel()
		return fmt.Errorf("issue session token: %w", err)
	}

	c.leave()
	c.room, c.sid, c.role, c.cancel = room, sid, role, cancel

	c.send <- c.ack(msg, joinResult{Room: room, SID: sid, Role: role, Token: token, Self: *player}, nil)
	c.forwarders.Add(1)
	go c.forward(sub)
	return nil
}

// leave drops the current room binding, if any.
func (c *conn) leave() {
	if c.cancel != nil {
		c.cancel()
	}
	c.room, c.sid, c.role, c.cancel = "", "", "", nil
}

func (c *conn) forward(sub *app.Subscription) {
	defer c.forwarders.Done()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case c.send <- eventMessage(ev):
			case <-c.closing:
				return
			}
		case <-c.closing:
			return
		}
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// pickID accepts either a question id or a full question object, which is
// validated before its id is used.
func pickID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return id, nil
	}
	q, err := domain.DecodeQuestion(raw)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}
