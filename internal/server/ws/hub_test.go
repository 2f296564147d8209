package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbflow/arbflow/internal/auth"
	"github.com/arbflow/arbflow/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub spins up a hub behind an httptest server and returns the ws URL.
func startHub(t *testing.T, verifier auth.TokenVerifier) (*Hub, string) {
	t.Helper()

	hub := NewHub(verifier, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one JSON text frame with a deadline so a missing message
// fails the test instead of hanging it.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

func TestConnectUnauthenticated(t *testing.T) {
	_, url := startHub(t, auth.NewHMACVerifier("secret"))
	conn := dial(t, url)

	msg := readFrame(t, conn)
	if msg["type"] != TypeConnected {
		t.Fatalf("expected %s, got %v", TypeConnected, msg["type"])
	}
	if msg["authenticated"] != false {
		t.Fatalf("expected authenticated=false, got %v", msg["authenticated"])
	}
}

func TestConnectWithValidToken(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	_, url := startHub(t, verifier)

	token := verifier.Sign("user-1", time.Hour)
	conn := dial(t, url+"?token="+token)

	msg := readFrame(t, conn)
	if msg["type"] != TypeConnected {
		t.Fatalf("expected %s, got %v", TypeConnected, msg["type"])
	}
	if msg["authenticated"] != true {
		t.Fatalf("expected authenticated=true, got %v", msg["authenticated"])
	}
}

func TestConnectWithBadTokenDowngrades(t *testing.T) {
	_, url := startHub(t, auth.NewHMACVerifier("secret"))
	conn := dial(t, url+"?token=not-a-token")

	msg := readFrame(t, conn)
	if msg["type"] != TypeConnected {
		t.Fatalf("expected %s, got %v", TypeConnected, msg["type"])
	}
	if msg["authenticated"] != false {
		t.Fatalf("expected authenticated=false, got %v", msg["authenticated"])
	}
}

func TestPingPong(t *testing.T) {
	_, url := startHub(t, auth.NewHMACVerifier("secret"))
	conn := dial(t, url)
	readFrame(t, conn) // CONNECTED

	if err := conn.WriteJSON(map[string]string{"type": TypePing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readFrame(t, conn)
	if msg["type"] != TypePong {
		t.Fatalf("expected %s, got %v", TypePong, msg["type"])
	}
}

func TestSubscribeRequiresAuth(t *testing.T) {
	_, url := startHub(t, auth.NewHMACVerifier("secret"))
	conn := dial(t, url)
	readFrame(t, conn) // CONNECTED

	err := conn.WriteJSON(map[string]any{
		"type":          TypeSubscribe,
		"subscriptions": []SubscriptionFilter{{Sport: "basketball_nba"}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readFrame(t, conn)
	if msg["type"] != TypeError {
		t.Fatalf("expected %s, got %v", TypeError, msg["type"])
	}
}

func TestSubscribeAuthenticated(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	_, url := startHub(t, verifier)

	token := verifier.Sign("user-1", time.Hour)
	conn := dial(t, url+"?token="+token)
	readFrame(t, conn) // CONNECTED

	err := conn.WriteJSON(map[string]any{
		"type":          TypeSubscribe,
		"subscriptions": []SubscriptionFilter{{Sport: "basketball_nba", Market: "h2h"}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readFrame(t, conn)
	if msg["type"] != TypeSubscribed {
		t.Fatalf("expected %s, got %v", TypeSubscribed, msg["type"])
	}
}

func TestMalformedMessageKeepsConnection(t *testing.T) {
	_, url := startHub(t, auth.NewHMACVerifier("secret"))
	conn := dial(t, url)
	readFrame(t, conn) // CONNECTED

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readFrame(t, conn)
	if msg["type"] != TypeError {
		t.Fatalf("expected %s, got %v", TypeError, msg["type"])
	}

	// Connection must still work after a bad frame.
	if err := conn.WriteJSON(map[string]string{"type": TypePing}); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	msg = readFrame(t, conn)
	if msg["type"] != TypePong {
		t.Fatalf("expected %s after error, got %v", TypePong, msg["type"])
	}
}

func TestBroadcastReachesAuthenticatedOnly(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	hub, url := startHub(t, verifier)

	token := verifier.Sign("user-1", time.Hour)
	authConn := dial(t, url+"?token="+token)
	readFrame(t, authConn) // CONNECTED

	anonConn := dial(t, url)
	readFrame(t, anonConn) // CONNECTED

	waitForClients(t, hub, 2)

	hub.NotifyNewOpportunity(domain.Opportunity{
		ID:         "opp-1",
		Sport:      "basketball_nba",
		EventName:  "Lakers vs Celtics",
		MarketType: "h2h",
		ROI:        4.2,
	})

	msg := readFrame(t, authConn)
	if msg["type"] != TypeNewOpportunity {
		t.Fatalf("expected %s, got %v", TypeNewOpportunity, msg["type"])
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", msg["data"])
	}
	if data["id"] != "opp-1" {
		t.Fatalf("expected opportunity opp-1, got %v", data["id"])
	}

	// The unauthenticated connection must not see the payload.
	anonConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := anonConn.ReadMessage(); err == nil {
		t.Fatalf("unauthenticated client received %q", raw)
	}
}

func TestNotifyOpportunityExpired(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	hub, url := startHub(t, verifier)

	token := verifier.Sign("user-1", time.Hour)
	conn := dial(t, url+"?token="+token)
	readFrame(t, conn) // CONNECTED

	waitForClients(t, hub, 1)

	hub.NotifyOpportunityExpired("opp-9")

	msg := readFrame(t, conn)
	if msg["type"] != TypeOpportunityExpired {
		t.Fatalf("expected %s, got %v", TypeOpportunityExpired, msg["type"])
	}
	if msg["opportunityId"] != "opp-9" {
		t.Fatalf("expected opportunityId opp-9, got %v", msg["opportunityId"])
	}
}

func TestIdentityEntryRemovedWithLastConnection(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	hub, url := startHub(t, verifier)

	token := verifier.Sign("user-1", time.Hour)
	conn1 := dial(t, url+"?token="+token)
	readFrame(t, conn1) // CONNECTED
	conn2 := dial(t, url+"?token="+token)
	readFrame(t, conn2) // CONNECTED

	waitForClients(t, hub, 2)
	if got := hub.IdentityCount(); got != 1 {
		t.Fatalf("expected 1 identity for two connections, got %d", got)
	}

	conn1.Close()
	waitForClients(t, hub, 1)
	if got := hub.IdentityCount(); got != 1 {
		t.Fatalf("identity dropped while a connection remains, count %d", got)
	}

	conn2.Close()
	waitForClients(t, hub, 0)
	deadline := time.Now().Add(2 * time.Second)
	for hub.IdentityCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("identity entry not removed, count %d", hub.IdentityCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSilentConnectionReaped(t *testing.T) {
	hub := NewHub(auth.NewHMACVerifier("secret"), discardLogger())
	hub.pingPeriod = 20 * time.Millisecond
	hub.pongWait = 45 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	// Swallow server pings so no pong ever goes back.
	conn.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	waitForClients(t, hub, 1)
	// The read deadline expires after pongWait with no pong; the hub must
	// drop the connection shortly after the second missed ping.
	waitForClients(t, hub, 0)
}

func TestShutdownClosesConnections(t *testing.T) {
	hub := NewHub(auth.NewHMACVerifier("secret"), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readFrame(t, conn) // CONNECTED
	waitForClients(t, hub, 1)

	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub loop did not exit after cancellation")
	}

	// The peer must observe the close instead of hanging on a dead hub.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read error after shutdown")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after shutdown, got %d", got)
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
