package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"

	"tally/internal/feed"
	"tally/internal/filter"
	"tally/internal/log"
	"tally/internal/session"
)

const (
	keyOwner = "owner"
	keyConn  = "conn"

	messageFilter = "filter"
	messageRetry  = "retry"
	messageView   = "view"
)

// liveMessage is what a client sends on the socket.
type liveMessage struct {
	Type   string          `json:"type"`
	Filter filter.Criteria `json:"filter"`
}

// liveEvent is what the server pushes.
type liveEvent struct {
	Type string `json:"type"`
	View View   `json:"view"`
}

// Live pushes a fresh view to every websocket client whenever its owner's
// records change. Each connection runs its own session, so its view
// reflects the latest snapshot without polling.
type Live struct {
	m      *melody.Melody
	feed   feed.Subscriber
	symbol string
	logger *log.Logger

	mu    sync.Mutex
	conns map[*melody.Session]*liveConn
}

// liveConn is one socket. mu serializes pushes so a view built from an
// older state never overwrites a newer one on the client.
type liveConn struct {
	send func([]byte) error
	sess *session.Session

	mu       sync.Mutex
	criteria filter.Criteria
	version  uint64
}

// NewLive creates the websocket hub over sub.
func NewLive(sub feed.Subscriber, symbol string, logger *log.Logger) *Live {
	if logger == nil {
		logger = log.Discard()
	}
	m := melody.New()
	m.Config.MaxMessageSize = 4 * 1024
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	l := &Live{
		m:      m,
		feed:   sub,
		symbol: symbol,
		logger: logger.WithComponent(log.ComponentLive),
		conns:  make(map[*melody.Session]*liveConn),
	}

	m.HandleConnect(l.connect)
	m.HandleMessage(l.message)
	m.HandleDisconnect(l.disconnect)
	m.HandleError(func(s *melody.Session, err error) {
		owner, _ := s.Get(keyOwner)
		l.logger.Warn("Websocket error", log.FieldOwner, owner, log.FieldError, err.Error())
	})
	return l
}

// Serve upgrades the request and binds the connection to owner.
func (l *Live) Serve(w http.ResponseWriter, r *http.Request, owner string) error {
	return l.m.HandleRequestWithKeys(w, r, map[string]interface{}{keyOwner: owner})
}

// Connections returns the number of open sockets.
func (l *Live) Connections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// Close disconnects every client.
func (l *Live) Close() {
	if err := l.m.Close(); err != nil {
		l.logger.Debug("Websocket hub close", log.FieldError, err.Error())
	}
}

func (l *Live) connect(s *melody.Session) {
	owner, _ := s.Get(keyOwner)
	conn := &liveConn{
		send:     s.Write,
		sess:     session.New(l.feed, l.logger),
		criteria: filter.Default(),
	}
	s.Set(keyConn, conn)

	l.mu.Lock()
	l.conns[s] = conn
	l.mu.Unlock()

	conn.sess.Listen(func(st session.State) {
		// idle is only reached on disconnect
		if st.Status == session.StatusIdle {
			return
		}
		l.push(conn, st)
	})
	conn.sess.Open(owner.(string))
	l.logger.Debug("Websocket connected", log.FieldOwner, owner)
}

func (l *Live) message(s *melody.Session, data []byte) {
	conn := l.lookup(s)
	if conn == nil {
		return
	}

	var msg liveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Debug("Malformed websocket message", log.FieldError, err.Error())
		return
	}

	switch msg.Type {
	case messageFilter:
		conn.mu.Lock()
		conn.criteria = msg.Filter
		conn.mu.Unlock()
		l.push(conn, conn.sess.State())
	case messageRetry:
		conn.sess.Retry()
	}
}

func (l *Live) disconnect(s *melody.Session) {
	l.mu.Lock()
	conn := l.conns[s]
	delete(l.conns, s)
	l.mu.Unlock()

	if conn != nil {
		conn.sess.Close()
	}
	owner, _ := s.Get(keyOwner)
	l.logger.Debug("Websocket disconnected", log.FieldOwner, owner)
}

func (l *Live) lookup(s *melody.Session) *liveConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[s]
}

// push sends the view of st unless a newer state was already sent. A
// state at the same version is resent, since the filter may have changed.
func (l *Live) push(conn *liveConn, st session.State) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if st.Version < conn.version {
		return
	}
	conn.version = st.Version

	payload, err := json.Marshal(liveEvent{Type: messageView, View: BuildView(st, conn.criteria, l.symbol)})
	if err != nil {
		l.logger.Error("Encode live view", log.FieldError, err.Error())
		return
	}
	if err := conn.send(payload); err != nil {
		l.logger.Debug("Live view not delivered", log.FieldOwner, st.Owner, log.FieldError, err.Error())
	}
}

// handleLive authenticates with the token query parameter or the
// Authorization header, since browsers cannot set headers on websockets.
func (s *Server) handleLive(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	owner, err := s.verifier.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.Set(log.FieldOwner, owner)

	if err := s.live.Serve(c.Writer, c.Request, owner); err != nil {
		s.logger.WarnContext(c.Request.Context(), "Websocket upgrade failed", log.FieldError, err.Error())
	}
}
