package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/auth"
	"trivia-show-service/internal/infra/memory"
)

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireAck struct {
	ID     string          `json:"id"`
	Intent string          `json:"intent"`
	OK     bool            `json:"ok"`
	Reason string          `json:"reason"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rooms := memory.NewRoomStore(4, 10)
	bank := memory.NewQuestionBank(memory.NewSampleQuestionLoader(), time.Minute)
	service := app.NewShowService(rooms, bank, app.Options{})
	tokens := auth.NewIssuer("test-secret", time.Hour, nil)
	ws := NewWSHandler(service, tokens, nil)
	server := httptest.NewServer(NewRouter(service, ws, RouterConfig{PublicURL: "https://show.example"}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, intent string, payload any) {
	t.Helper()
	msg := map[string]any{"type": intent, "id": id, "payload": payload}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", intent, err)
	}
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wireMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		var msg wireMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message", typ)
	return wireMessage{}
}

// call sends an intent and returns its ack, skipping interleaved events.
func call(t *testing.T, conn *websocket.Conn, id, intent string, payload any) wireAck {
	t.Helper()
	send(t, conn, id, intent, payload)
	for i := 0; i < 50; i++ {
		msg := readUntil(t, conn, "ack")
		var a wireAck
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if a.ID == id {
			if a.Intent != intent {
				t.Fatalf("ack %s answers %s, expected %s", id, a.Intent, intent)
			}
			return a
		}
	}
	t.Fatalf("no ack for %s", id)
	return wireAck{}
}

func mustOK(t *testing.T, a wireAck) {
	t.Helper()
	if !a.OK {
		t.Fatalf("%s rejected: %s (%s)", a.Intent, a.Reason, a.Error)
	}
}

func joinAs(t *testing.T, conn *websocket.Conn, id, room, name, role string) (sid, token string) {
	t.Helper()
	a := call(t, conn, id, "joinRoom", map[string]any{"room": room, "name": name, "role": role})
	mustOK(t, a)
	var res struct {
		SID   string `json:"sid"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(a.Result, &res); err != nil {
		t.Fatalf("decode join result: %v", err)
	}
	if res.SID == "" || res.Token == "" {
		t.Fatalf("expected sid and token, got %s", a.Result)
	}
	return res.SID, res.Token
}

func TestWebSocketMultipleChoiceShow(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)
	player := dial(t, server)

	created := call(t, host, "1", "createRoom", nil)
	mustOK(t, created)
	var room struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(created.Result, &room); err != nil || room.Room == "" {
		t.Fatalf("expected room code, got %s (%v)", created.Result, err)
	}

	joinAs(t, host, "2", room.Room, "", "host")
	// codes are case-insensitive
	pid, _ := joinAs(t, player, "p1", strings.ToLower(room.Room), "Ann", "player")
	readUntil(t, player, "state")

	mustOK(t, call(t, host, "3", "getQuestions", map[string]any{"type": "mc", "count": 1}))
	mustOK(t, call(t, host, "4", "startRound", map[string]any{"roundType": "mc"}))
	mustOK(t, call(t, host, "5", "startQuestion", map[string]any{}))

	started := readUntil(t, player, "questionStarted")
	var q struct {
		Question struct {
			Answer  string   `json:"answer"`
			Choices []string `json:"choices"`
		} `json:"question"`
		EndsAt int64 `json:"endsAt"`
	}
	if err := json.Unmarshal(started.Payload, &q); err != nil {
		t.Fatalf("decode questionStarted: %v", err)
	}
	if q.Question.Answer != "" || len(q.Question.Choices) != 4 || q.EndsAt == 0 {
		t.Fatalf("player must see a redacted timed question, got %s", started.Payload)
	}

	if a := call(t, player, "p2", "startQuestion", nil); a.OK || a.Reason != "forbidden" {
		t.Fatalf("expected players to be forbidden from host intents, got %+v", a)
	}
	mustOK(t, call(t, player, "p3", "submitAnswer", map[string]any{"answer": "Canberra"}))
	if a := call(t, player, "p4", "submitAnswer", map[string]any{"answer": "Perth"}); a.OK || a.Reason != "already_submitted" {
		t.Fatalf("expected already_submitted, got %+v", a)
	}
	readUntil(t, host, "allAnswered")

	revealed := call(t, host, "6", "revealAnswer", nil)
	mustOK(t, revealed)
	var defaults struct {
		Scores map[string]int `json:"defaultQuestionScores"`
	}
	if err := json.Unmarshal(revealed.Result, &defaults); err != nil {
		t.Fatalf("decode reveal: %v", err)
	}
	if defaults.Scores[pid] != 10 {
		t.Fatalf("expected 10 default points for the correct answer, got %v", defaults.Scores)
	}

	confirmed := call(t, host, "7", "confirmPoints", map[string]any{"overrides": map[string]int{}})
	mustOK(t, confirmed)
	if !bytes.Contains(confirmed.Result, []byte(`"roundExhausted":true`)) {
		t.Fatalf("expected exhausted round, got %s", confirmed.Result)
	}

	mustOK(t, call(t, host, "8", "endRound", nil))
	board := readUntil(t, player, "roundLeaderboard")
	if !bytes.Contains(board.Payload, []byte(pid)) {
		t.Fatalf("expected player in round leaderboard, got %s", board.Payload)
	}

	mustOK(t, call(t, host, "9", "endShow", nil))
	readUntil(t, player, "finalScoreboard")
	if a := call(t, player, "p5", "submitAnswer", map[string]any{"answer": "Canberra"}); a.OK || a.Reason != "room_closed" {
		t.Fatalf("expected room_closed, got %+v", a)
	}
	// endShow is idempotent
	mustOK(t, call(t, host, "10", "endShow", nil))
}

func TestWebSocketRejectsBeforeJoin(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server)

	if a := call(t, conn, "1", "buzz", nil); a.OK || a.Reason != "not_joined" {
		t.Fatalf("expected not_joined, got %+v", a)
	}
	if a := call(t, conn, "2", "joinRoom", map[string]any{"room": "ZZZZ", "name": "Ann"}); a.OK || a.Reason != "not_found" {
		t.Fatalf("expected not_found, got %+v", a)
	}
	if a := call(t, conn, "3", "dance", nil); a.OK || a.Reason != "not_joined" {
		t.Fatalf("expected not_joined for unknown intent before join, got %+v", a)
	}
}

func TestWebSocketResumesSessionWithToken(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)
	created := call(t, host, "1", "createRoom", nil)
	var room struct {
		Room string `json:"room"`
	}
	_ = json.Unmarshal(created.Result, &room)
	joinAs(t, host, "2", room.Room, "", "host")

	first := dial(t, server)
	sid, token := joinAs(t, first, "1", room.Room, "Ann", "player")
	first.Close()

	second := dial(t, server)
	a := call(t, second, "1", "joinRoom", map[string]any{"room": room.Room, "role": "player", "token": token})
	mustOK(t, a)
	if !bytes.Contains(a.Result, []byte(sid)) {
		t.Fatalf("expected resumed sid %s, got %s", sid, a.Result)
	}

	if a := call(t, second, "2", "joinRoom", map[string]any{"room": room.Room, "role": "player", "token": "garbage"}); a.OK || a.Reason != "forbidden" {
		t.Fatalf("expected forbidden for a bad token, got %+v", a)
	}
}

func TestRoomEndpoints(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/rooms/NOPE")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	host := dial(t, server)
	created := call(t, host, "1", "createRoom", nil)
	var room struct {
		Room string `json:"room"`
	}
	_ = json.Unmarshal(created.Result, &room)

	resp, err = http.Get(server.URL + "/v1/rooms/" + room.Room)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	var snap struct {
		Room  string `json:"room"`
		Phase string `json:"phase"`
	}
	err = json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Room != room.Room || snap.Phase != "lobby" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	resp, err = http.Get(server.URL + "/v1/rooms/" + room.Room + "/qr.png")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestJoinURL(t *testing.T) {
	if got := JoinURL("https://show.example", "ABCD"); got != "https://show.example/?room=ABCD" {
		t.Fatalf("unexpected join url %q", got)
	}
}
