package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

// NewWatchCmd connects to a running server and prints a room as an
// observer sees it.
func NewWatchCmd() *cobra.Command {
	var (
		url   string
		room  string
		role  string
		name  string
		token string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a room from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if room == "" {
				return fmt.Errorf("--room is required")
			}
			return watch(url, room, role, name, token, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "websocket endpoint")
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&role, "role", string(domain.RolePresenter), "role to join as: player, host, presenter")
	cmd.Flags().StringVar(&name, "name", "", "display name when joining as a player")
	cmd.Flags().StringVar(&token, "token", "", "session token to resume")
	return cmd
}

type watchMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func watch(url, room, role, name, token string, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	join := map[string]any{
		"type": "joinRoom",
		"id":   "watch",
		"payload": map[string]string{
			"room":  room,
			"role":  role,
			"name":  name,
			"token": token,
		},
	}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	parsedRole, _ := domain.ParseRole(role)
	view := game.NewView("", parsedRole)
	for {
		var msg watchMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msg.Type == "ack" {
			var a struct {
				OK     bool   `json:"ok"`
				Reason string `json:"reason"`
				Error  string `json:"error"`
				Result struct {
					SID   string `json:"sid"`
					Token string `json:"token"`
				} `json:"result"`
			}
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				return fmt.Errorf("decode ack: %w", err)
			}
			if !a.OK {
				return fmt.Errorf("join rejected: %s (%s)", a.Reason, a.Error)
			}
			view.SessionID = a.Result.SID
			fmt.Fprintf(out, "joined %s as %s (sid %s)\nresume with --token %s\n", strings.ToUpper(room), parsedRole, a.Result.SID, a.Result.Token)
			continue
		}

		ev, err := domain.DecodeEvent(domain.EventType(msg.Type), msg.Payload)
		if err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("skipping event")
			continue
		}
		now := time.Now()
		view.Apply(ev, now)
		if ev.Type == domain.EventTick {
			continue
		}
		fmt.Fprintln(out, describe(view, ev.Type, now))
	}
}

// describe renders the view as one status line.
func describe(v *game.View, typ domain.EventType, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] phase=%s", typ, v.Phase)
	if v.Round != nil {
		fmt.Fprintf(&b, " round=%d/%s left=%d", v.Round.Number, v.Round.Type, v.Round.Remaining)
	}
	if v.Question != nil {
		fmt.Fprintf(&b, " q=%q", v.Question.Prompt)
		if secs, ok := v.Remaining(now); ok {
			fmt.Fprintf(&b, " %ds", secs)
		}
	}
	if v.Buzzed != nil {
		fmt.Fprintf(&b, " buzzed=%s", v.Buzzed.Name)
	}
	if v.Revealed && v.Answer != "" {
		fmt.Fprintf(&b, " answer=%q", v.Answer)
	}
	if len(v.Players) > 0 {
		parts := make([]string, 0, len(v.Players))
		for _, p := range v.Players {
			parts = append(parts, fmt.Sprintf("%s:%d", p.Name, p.Score))
		}
		fmt.Fprintf(&b, " players=[%s]", strings.Join(parts, " "))
	}
	return b.String()
}
