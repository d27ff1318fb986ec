package eventstream

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/abemis/portal/events"
)

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// domains lists the subject subtrees a client may narrow to.
var domains = []string{"formbuilder", "project"}

// RegisterHTTPHandlers registers the websocket endpoint at prefix.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	mux.HandleFunc("GET "+prefix+"{$}", c.handleStream)
	mux.HandleFunc("GET "+strings.TrimSuffix(prefix, "/"), c.handleStream)
}

// subjectFor maps the domain query parameter to a NATS subject.
func subjectFor(domain string) (string, bool) {
	if domain == "" {
		return events.SubjectAll, true
	}
	if !slices.Contains(domains, domain) {
		return "", false
	}
	return "abemis.events." + domain + ".>", true
}

func (c *Component) upgrader() *websocket.Upgrader {
	up := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(c.config.AllowedOrigins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return slices.Contains(c.config.AllowedOrigins, u.Scheme+"://"+u.Host)
		}
	}
	return up
}

// handleStream upgrades to a websocket and relays events until the client
// goes away, the component stops, or the client falls behind.
func (c *Component) handleStream(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFor(r.URL.Query().Get("domain"))
	if !ok {
		http.Error(w, "unknown domain", http.StatusBadRequest)
		return
	}

	msgs := make(chan *nats.Msg, c.config.Buffer)
	sub, err := c.sub.ChanSubscribe(subject, msgs)
	if err != nil {
		c.logger.Error("Failed to subscribe", "subject", subject, "error", err)
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("Unsubscribe failed", "error", err)
		}
	}()

	conn, err := c.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		c.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c.clients.Add(1)
	defer c.clients.Add(-1)
	c.logger.Debug("Event stream client connected", "subject", subject, "remote", r.RemoteAddr)

	// The reader only exists to notice the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := c.writeJSON(conn, map[string]string{"type": "connected", "subject": subject}); err != nil {
		return
	}

	heartbeat := time.NewTicker(c.config.heartbeat())
	defer heartbeat.Stop()

	stop := c.runContext().Done()
	reqDone := r.Context().Done()
	for {
		select {
		case <-stop:
			c.closeWith(conn, websocket.CloseGoingAway, "server stopping")
			return
		case <-reqDone:
			return
		case <-closed:
			return
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg := <-msgs:
			if dropped, _ := sub.Dropped(); dropped > 0 {
				c.dropped.Add(int64(dropped))
				c.closeWith(conn, websocket.ClosePolicyViolation, "client too slow")
				return
			}
			if err := c.writeMessage(conn, msg.Data); err != nil {
				return
			}
			c.delivered.Add(1)
			c.lastEvent.Store(time.Now().UnixNano())
		}
	}
}

func (c *Component) writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// writeMessage forwards an event envelope as-is.
func (c *Component) writeMessage(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Component) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
