// Package gateway exposes the router over a websocket transport. It is
// one concrete adapter; the core never depends on it.
package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/logging"
	"github.com/castaldi/frank/internal/routing"
	"github.com/castaldi/frank/internal/store"
)

// transcriptDepth is how many prior turns feed classification and
// responder context.
const transcriptDepth = 20

// Server accepts websocket clients and runs their turns through the router.
type Server struct {
	cfg         config.GatewayConfig
	router      *routing.Router
	transcripts *store.Transcripts // optional
	bus         *events.Bus        // optional
	log         *logging.Logger
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client

	httpServer *http.Server
}

func New(cfg config.GatewayConfig, router *routing.Router, transcripts *store.Transcripts, bus *events.Bus, log *logging.Logger) *Server {
	return &Server{
		cfg:         cfg,
		router:      router,
		transcripts: transcripts,
		bus:         bus,
		log:         log.Sub("gateway"),
		clients:     make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Start listens for connections until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Token == "" && s.cfg.Bind != "127.0.0.1" && s.cfg.Bind != "localhost" {
		s.log.Warn().Msg("no gateway token configured on a non-loopback bind")
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway server ready")

	if s.bus != nil {
		s.bus.Subscribe("gateway", s.broadcastEvent)
		defer s.bus.Unsubscribe("gateway")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.closeAll()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("unauthorized websocket attempt")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(1 * 1024 * 1024)

	c := newClient(conn, s.log)
	s.addClient(c)
	defer func() {
		s.removeClient(c.id)
		c.close()
	}()

	s.log.Debug().Str("connId", c.id).Str("remote", r.RemoteAddr).Msg("client connected")
	s.readLoop(r.Context(), c)
}

// readLoop handles one connection. Turns run sequentially per connection,
// which keeps each conversation logically single-threaded.
func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", c.id).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", c.id).Msg("read error")
			}
			return
		}
		if frame.Type != FrameMessage {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring unexpected frame")
			continue
		}
		s.handleTurn(ctx, c, frame)
	}
}

// handleTurn runs one utterance through the router, streaming chunks as
// they flush and closing with a single reply frame.
func (s *Server) handleTurn(ctx context.Context, c *client, frame Frame) {
	conversationID := frame.ConversationID
	if conversationID == "" {
		conversationID = c.id
	}
	turnID := frame.ID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	convCtx := s.conversationContext(conversationID)
	s.appendTranscript(conversationID, domain.RoleUser, frame.Text)

	var reply *domain.Reply
	if frame.Stream {
		c.send(Frame{Type: FrameStreamStart, ID: turnID, ConversationID: conversationID})
		reply = s.router.HandleStream(ctx, conversationID, frame.Text, convCtx, func(chunk string) error {
			return c.send(Frame{
				Type:           FrameStreamChunk,
				ID:             turnID,
				ConversationID: conversationID,
				Text:           chunk,
			})
		})
		c.send(Frame{Type: FrameStreamEnd, ID: turnID, ConversationID: conversationID})
	} else {
		reply = s.router.Handle(ctx, conversationID, frame.Text, convCtx)
	}

	c.send(Frame{
		Type:           FrameReply,
		ID:             turnID,
		ConversationID: conversationID,
		Text:           reply.Text,
		Kind:           string(reply.Kind),
		ToolName:       reply.ToolName,
		Success:        reply.Success,
	})

	s.appendTranscript(conversationID, domain.RoleAssistant, reply.Text)
}

func (s *Server) conversationContext(conversationID string) *domain.Context {
	if s.transcripts == nil {
		return &domain.Context{ConversationID: conversationID}
	}
	convCtx, err := s.transcripts.Context(conversationID, transcriptDepth)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load conversation context")
		return &domain.Context{ConversationID: conversationID}
	}
	return convCtx
}

func (s *Server) appendTranscript(conversationID, role, text string) {
	if s.transcripts == nil || strings.TrimSpace(text) == "" {
		return
	}
	if err := s.transcripts.Append(conversationID, role, text); err != nil {
		s.log.Error().Err(err).Msg("failed to append transcript turn")
	}
}

// broadcastEvent forwards one lifecycle event to every connected client.
func (s *Server) broadcastEvent(ev events.Event) {
	frame := Frame{Type: FrameEvent, Event: &ev}
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		if err := c.send(frame); err != nil {
			s.log.Debug().Err(err).Str("connId", c.id).Msg("event delivery failed")
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[string]*client)
}
