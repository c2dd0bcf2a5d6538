package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

const qrSize = 256

// RouterConfig holds what the HTTP surface needs beyond the service.
type RouterConfig struct {
	PublicURL      string
	AllowedOrigins []string
}

// NewRouter wires the websocket protocol and the room endpoints.
func NewRouter(service *app.ShowService, ws *WSHandler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)

	rooms := &roomHandler{service: service, publicURL: strings.TrimRight(cfg.PublicURL, "/")}
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/rooms/{code}", rooms.snapshot).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{code}/qr.png", rooms.qr).Methods(http.MethodGet)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(r)
}

type roomHandler struct {
	service   *app.ShowService
	publicURL string
}

// snapshot serves the public (presenter) view of a room.
func (h *roomHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), mux.Vars(r)["code"], "")
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Warn().Err(err).Msg("encode snapshot")
	}
}

// qr encodes the join link of a room.
func (h *roomHandler) qr(w http.ResponseWriter, r *http.Request) {
	code := game.NormalizeCode(mux.Vars(r)["code"])
	if _, err := h.service.Snapshot(r.Context(), code, ""); err != nil {
		writeError(w, err)
		return
	}
	png, err := qrcode.Encode(JoinURL(h.publicURL, code), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("encode qr")
		http.Error(w, "qr encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// JoinURL is the link players follow to join a room.
func JoinURL(publicURL, code string) string {
	return publicURL + "/?room=" + url.QueryEscape(code)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrNotFound) {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"reason": reasonFor(err), "error": err.Error()})
}

// originChecker accepts any origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
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
