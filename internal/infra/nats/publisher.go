package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/domain"
)

// Message is the exported form of one room event.
type Message struct {
	Room    string           `json:"room"`
	Type    domain.EventType `json:"type"`
	Payload any              `json:"payload"`
	At      int64            `json:"at"`
}

// Publisher exports broadcast room events to NATS on
// <prefix>.<room>.<event>. It implements app.EventSink. Targeted events
// (state snapshots, per-player buzzer status, host-only questions) stay
// private and are not exported.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

// Connect dials NATS with reconnect logging.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "trivia"
	}
	return &Publisher{nc: nc, prefix: prefix, now: time.Now}
}

func (p *Publisher) Publish(_ context.Context, room string, events []domain.Event) error {
	for _, ev := range events {
		subject, data, ok, err := p.encode(room, ev)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := p.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}
	return nil
}

func (p *Publisher) encode(room string, ev domain.Event) (string, []byte, bool, error) {
	if ev.To != "" || len(ev.Roles) > 0 {
		return "", nil, false, nil
	}
	data, err := json.Marshal(Message{Room: room, Type: ev.Type, Payload: ev.Payload, At: p.now().UnixMilli()})
	if err != nil {
		return "", nil, false, fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	return Subject(p.prefix, room, ev.Type), data, true, nil
}

// Subject builds the NATS subject of a room event.
func Subject(prefix, room string, typ domain.EventType) string {
	return strings.Join([]string{prefix, room, string(typ)}, ".")
}
