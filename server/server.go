// Package server serves stories over websockets: every connection gets its
// own machine running on its own goroutine.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/chazu/storyvm/save"
	"github.com/chazu/storyvm/vm"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("storyvm.server")

// Server plays one story for many players.
type Server struct {
	story    []byte
	storyID  vm.StoryID
	cfg      *serverConfig
	sessions *SessionStore
	metrics  *metrics
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	tokens      *TokenIssuer
	tokenKey    string
	maxSessions int
	store       save.Store
	machineOpts []vm.Option
}

// WithTokens requires a valid player token on /play and /sessions.
func WithTokens(t *TokenIssuer) ServerOption {
	return func(c *serverConfig) { c.tokens = t }
}

// WithTokenKey enables /token for callers presenting key in the
// X-Storyvm-Key header. Without a key, tokens are issued out of band.
func WithTokenKey(key string) ServerOption {
	return func(c *serverConfig) { c.tokenKey = key }
}

// TokenKeyHeader carries the key that /token requires.
const TokenKeyHeader = "X-Storyvm-Key"

// WithMaxSessions bounds concurrent sessions; 0 means unbounded.
func WithMaxSessions(n int) ServerOption {
	return func(c *serverConfig) { c.maxSessions = n }
}

// WithSaveStore keeps save games in store, one slot per player.
func WithSaveStore(store save.Store) ServerOption {
	return func(c *serverConfig) { c.store = store }
}

// WithMachineOptions adds options to every session's machine.
func WithMachineOptions(opts ...vm.Option) ServerOption {
	return func(c *serverConfig) { c.machineOpts = append(c.machineOpts, opts...) }
}

// New creates a Server for the story file contents. The story is checked
// once here so a bad file fails at startup rather than per connection.
func New(story []byte, opts ...ServerOption) (*Server, error) {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	h, err := vm.ParseHeader(story)
	if err != nil {
		return nil, err
	}
	if _, err := vm.Load(story, cfg.machineOpts...); err != nil {
		return nil, err
	}

	s := &Server{
		story:    story,
		storyID:  h.ID(),
		cfg:      cfg,
		sessions: NewSessionStore(cfg.maxSessions),
		metrics:  newMetrics(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("/play", s.handlePlay)
	s.mux.HandleFunc("/token", s.handleToken)
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	return s, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler { return s.mux }

// Sessions returns the live session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// authorize returns the player for a request. Without token checking every
// connection is an anonymous guest.
func (s *Server) authorize(r *http.Request) (string, error) {
	if s.cfg.tokens == nil {
		return "", nil
	}
	token := tokenFromRequest(r)
	if token == "" {
		return "", errors.New("missing token")
	}
	return s.cfg.tokens.Validate(token)
}

// tokenRequest is the optional body of a /token request.
type tokenRequest struct {
	Player string `json:"player"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.tokens == nil || s.cfg.tokenKey == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := r.Header.Get(TokenKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.tokenKey)) != 1 {
		s.metrics.rejected.Inc()
		http.Error(w, "invalid token key", http.StatusUnauthorized)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	token, err := s.cfg.tokens.Issue(req.Player)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sessions.List())
}

// clientMessage is a frame sent by the player.
type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	player, err := s.authorize(r)
	if err != nil {
		s.metrics.rejected.Inc()
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	session, err := s.sessions.Create(player)
	if err != nil {
		s.metrics.rejected.Inc()
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Destroy(session.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("session %s: upgrade failed: %s", session.ID, err)
		return
	}
	defer conn.Close()

	s.metrics.sessions.Inc()
	s.metrics.active.Inc()
	defer s.metrics.active.Dec()
	log.Infof("session %s started for %q", session.ID, player)

	if err := s.play(session, conn); err != nil {
		log.Warningf("session %s: %s", session.ID, err)
	}
	log.Infof("session %s ended", session.ID)
}

// play runs one session: the machine on its worker goroutine, a reader
// feeding it input and a writer streaming its events.
func (s *Server) play(session *Session, conn *websocket.Conn) error {
	// a hijacked connection's request context is not cancelled on close
	g, ctx := errgroup.WithContext(context.Background())
	worker := newMachineWorker(ctx)

	opts := append([]vm.Option{}, s.cfg.machineOpts...)
	opts = append(opts, vm.WithInput(worker), vm.WithOutput(worker))
	if s.cfg.store != nil {
		slot := session.Player
		if slot == "" {
			slot = save.DefaultSlot
		}
		opts = append(opts, vm.WithPersistence(save.NewPersister(ctx, s.cfg.store, s.story, slot)))
	}
	m, err := vm.Load(s.story, opts...)
	if err != nil {
		conn.WriteJSON(event{Type: eventError, Message: err.Error()})
		return err
	}

	if err := conn.WriteJSON(event{Type: eventHello, Session: session.ID, Story: s.storyID.String()}); err != nil {
		return errors.Wrap(err, "write hello")
	}

	g.Go(func() error {
		err := worker.run(m)
		s.metrics.instructions.Add(float64(m.Steps()))
		if err != nil && !errors.Is(err, context.Canceled) {
			s.metrics.machineError(err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return errors.Wrap(err, "read")
			}
			if msg.Type != "input" {
				continue
			}
			s.metrics.commands.Inc()
			if !worker.submit(msg.Text) {
				return nil
			}
		}
	})

	// the writer runs here; when the event stream ends the connection is
	// closed, which also ends the reader
	var werr error
	for ev := range worker.events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if werr = conn.WriteJSON(ev); werr != nil {
			break
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()
	for range worker.events {
	}
	g.Wait()
	return errors.Wrap(werr, "write")
}
