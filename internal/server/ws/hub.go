package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbflow/arbflow/internal/auth"
	"github.com/arbflow/arbflow/internal/domain"
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

const (
	// defaultPingPeriod is the interval between server pings.
	defaultPingPeriod = 30 * time.Second

	// defaultPongWait spans two ping intervals so a single lost pong does
	// not kill the connection.
	defaultPongWait = 2*defaultPingPeriod + 5*time.Second
)

// Hub manages the set of connected WebSocket clients and pushes opportunity
// events out to them. Opportunity payloads only go to authenticated clients;
// unauthenticated connections stay open but receive liveness traffic only.
type Hub struct {
	clients map[*client]bool
	// identities groups authenticated connections by user id; the last
	// connection for a user removes the entry.
	identities map[string]map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	// done is closed when Run exits so per-connection goroutines stop
	// trying to deliver unregistrations to a loop that is gone.
	done     chan struct{}
	verifier auth.TokenVerifier
	mu       sync.RWMutex
	logger   *slog.Logger

	// Liveness timing. A peer that stays silent past pongWait, two missed
	// pings under the defaults, is dropped by its read deadline.
	pingPeriod time.Duration
	pongWait   time.Duration
}

// NewHub creates a hub. The verifier checks tokens presented on connect; a
// nil verifier means every connection stays unauthenticated.
func NewHub(verifier auth.TokenVerifier, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		identities: make(map[string]map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		verifier:   verifier,
		logger:     logger,
		pingPeriod: defaultPingPeriod,
		pongWait:   defaultPongWait,
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				c.conn.Close()
				delete(h.clients, c)
				h.dropIdentityLocked(c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if c.authenticated {
				set := h.identities[c.userID]
				if set == nil {
					set = make(map[*client]bool)
					h.identities[c.userID] = set
				}
				set[c] = true
			}
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Bool("authenticated", c.authenticated),
				slog.Int("total_clients", h.ClientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.dropIdentityLocked(c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.authenticated {
					continue
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Authentication is attempted from the "token"
// query parameter; a bad or missing token downgrades the connection to
// unauthenticated rather than rejecting it.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	if token := r.URL.Query().Get("token"); token != "" && h.verifier != nil {
		identity, err := h.verifier.Verify(token)
		if err != nil {
			h.logger.Warn("ws: token rejected, continuing unauthenticated",
				slog.String("error", err.Error()),
			)
		} else {
			c.authenticated = true
			c.userID = identity.UserID
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	greeting := "connected, authenticate to receive live opportunities"
	if c.authenticated {
		greeting = "connected to live opportunity feed"
	}
	c.enqueue(mustMarshal(connectedMessage{
		Type:          TypeConnected,
		Message:       greeting,
		Authenticated: c.authenticated,
	}))

	go c.writePump()
	go c.readPump()
}

// NotifyNewOpportunity pushes a freshly detected opportunity to all
// authenticated clients. Implements domain.OpportunityNotifier.
func (h *Hub) NotifyNewOpportunity(opp domain.Opportunity) {
	h.publish(mustMarshal(opportunityMessage{Type: TypeNewOpportunity, Data: opp}))
}

// NotifyOpportunityExpired announces a deactivated opportunity so clients
// can drop it from their views. Implements domain.OpportunityNotifier.
func (h *Hub) NotifyOpportunityExpired(id string) {
	h.publish(mustMarshal(expiredMessage{Type: TypeOpportunityExpired, OpportunityID: id}))
}

func (h *Hub) publish(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("ws: broadcast queue full, dropping event")
	}
}

// dropIdentityLocked removes c from its identity's connection set, deleting
// the identity entry when its last connection goes. Caller holds h.mu.
func (h *Hub) dropIdentityLocked(c *client) {
	if !c.authenticated {
		return
	}
	set := h.identities[c.userID]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.identities, c.userID)
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IdentityCount returns the number of distinct authenticated users connected.
func (h *Hub) IdentityCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}

var _ domain.OpportunityNotifier = (*Hub)(nil)
