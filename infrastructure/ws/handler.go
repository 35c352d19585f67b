package ws

import (
	"huddle/contract"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Settings bounds every connection accepted by a Handler.
type Settings struct {
	AllowedOrigins []string
	SendBuffer     int
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Handler upgrades GET /ws requests and starts the pumps of each connection.
// Identity is established in-band by the first auth envelope.
type Handler struct {
	handler  contract.ConnHandler
	log      *slog.Logger
	settings Settings
	upgrader websocket.Upgrader
	origins  map[string]struct{}
	allowAll bool
}

func NewHandler(handler contract.ConnHandler, log *slog.Logger, settings Settings) *Handler {
	h := &Handler{
		handler:  handler,
		log:      log,
		settings: settings,
		origins:  make(map[string]struct{}),
	}
	for _, origin := range settings.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			h.allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(origin); ok {
			h.origins[normalized] = struct{}{}
		} else if origin != "" {
			log.Warn("Ignoring invalid allowed origin", "origin", origin)
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(socket, h.handler, h.log, h.settings)
	conn.log.Debug("Websocket accepted", "remote", r.RemoteAddr)
	h.handler.Connect(conn)
	go conn.writePump()
	go conn.readPump()
}

// checkOrigin accepts non-browser clients (no Origin header) and the configured
// origins. Without configured origins only same-host pages are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if ok {
		if _, allowed := h.origins[normalized]; allowed {
			return true
		}
		_, host, _ := strings.Cut(normalized, "://")
		if len(h.origins) == 0 && strings.EqualFold(host, r.Host) {
			return true
		}
	}
	h.log.Info("Blocked websocket from disallowed origin", "origin", origin)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
