package websocket

import (
	"context"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/runtime"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	SignalingPath = "/api/ws/webrtc-plain"
	ChatPath      = "/ws-chat"
	HealthPath    = "/health"
)

// Lifecycle is what the transport needs from a feature.
type Lifecycle interface {
	Connect(ctx context.Context, req auth.ConnectRequest, ch contract.Channel) (*runtime.Session, error)
	Receive(ctx context.Context, s *runtime.Session, raw []byte)
	Disconnect(ctx context.Context, s *runtime.Session, reason domain.DisconnectReason)
}

type ServerConfig struct {
	Pump           PumpConfig
	AllowedOrigins []string
}

// Server exposes the signaling and chat features over websocket.
type Server struct {
	log       *slog.Logger
	config    ServerConfig
	upgrader  websocket.Upgrader
	signaling Lifecycle
	chat      Lifecycle
}

func NewServer(log *slog.Logger, config ServerConfig, signaling, chat Lifecycle) *Server {
	s := &Server{log: log, config: config, signaling: signaling, chat: chat}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SignalingPath, s.serve(domain.FeatureSignaling, s.signaling))
	mux.HandleFunc(ChatPath, s.serve(domain.FeatureChat, s.chat))
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// NewHTTPServer binds the handler to addr with conservative header timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve upgrades the request and owns the connection until it ends.
// The write pump starts first so a rejected connection still receives its reason.
func (s *Server) serve(feature domain.Feature, lifecycle Lifecycle) http.HandlerFunc {
	log := s.log.With("feature", feature)
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn := NewConn(log, ws, s.config.Pump)
		go conn.WritePump()

		// The handler lives as long as the connection, so does its context
		ctx := r.Context()
		query := r.URL.Query()
		session, err := lifecycle.Connect(ctx, auth.ConnectRequest{
			Token:  query.Get("token"),
			RoomID: query.Get("roomId"),
			UserID: query.Get("userId"),
		}, conn)
		if err != nil {
			return
		}

		err = conn.ReadPump(func(raw []byte) {
			lifecycle.Receive(ctx, session, raw)
		})
		reason := domain.ReasonClosed
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			log.Debug("Connection dropped", "room_id", session.RoomID, "user_id", session.UserID, "error", err)
			reason = domain.ReasonError
		}
		lifecycle.Disconnect(ctx, session, reason)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.AllowedOrigins) == 0 || lo.Contains(s.config.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.config.AllowedOrigins, origin)
}
