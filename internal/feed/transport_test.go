package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// feedServer upgrades connections, reports each received subscription,
// and drops the first connection right after its subscribe to force a
// reconnect.
func feedServer(t *testing.T, subs chan<- []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var connCount atomic.Int32

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connCount.Add(1)

		var sub Subscription
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		ids := append([]string(nil), sub.AssetsIDs...)
		sort.Strings(ids)
		subs <- ids

		if n == 1 {
			return // drop the connection
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestResubscribeAfterReconnect(t *testing.T) {
	subs := make(chan []string, 4)
	srv := feedServer(t, subs)
	defer srv.Close()

	tr := NewTransport(TransportConfig{
		URL:            wsURL(srv),
		ReconnectDelay: 50 * time.Millisecond,
	}, discardLogger())

	// Subscribe while disconnected: desired state only, replayed on
	// connect.
	if err := tr.Subscribe([]string{"token-up", "token-down"}, true); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx, true)
	defer tr.Stop()

	want := []string{"token-down", "token-up"}
	for i := 0; i < 2; i++ {
		select {
		case got := <-subs:
			if !slices.Equal(got, want) {
				t.Errorf("subscribe %d: got %v, want %v", i+1, got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for subscribe %d", i+1)
		}
	}
}

func TestSubscribeReplaceClearsPrior(t *testing.T) {
	tr := NewTransport(TransportConfig{URL: "ws://unused"}, discardLogger())

	if err := tr.Subscribe([]string{"a", "b"}, true); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := tr.Subscribe([]string{"c"}, true); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	got := tr.desired.AsSlice()
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("desired after replace: got %v, want [c]", got)
	}

	if err := tr.Subscribe([]string{"d"}, false); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if tr.desired.Len() != 2 {
		t.Errorf("desired after append: got %v", tr.desired.AsSlice())
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	tr := NewTransport(TransportConfig{URL: "ws://unused"}, discardLogger())
	if err := tr.Send(struct{}{}); err != ErrNotConnected {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestRunWithoutReconnectReturnsConnectError(t *testing.T) {
	tr := NewTransport(TransportConfig{
		URL:              "ws://127.0.0.1:1", // nothing listens here
		HandshakeTimeout: 200 * time.Millisecond,
	}, discardLogger())

	var reported atomic.Bool
	tr.OnError(func(error) { reported.Store(true) })

	err := tr.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !reported.Load() {
		t.Error("connect failure was not reported via error callback")
	}
	if tr.State() != StateStopped {
		t.Errorf("state: got %v, want stopped", tr.State())
	}
}

func TestConnectAfterStopFails(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(TransportConfig{URL: wsURL(srv)}, discardLogger())
	tr.Stop()

	// Stopped is terminal: a dial that would otherwise succeed must
	// not bring the transport back up or leave a live connection.
	if err := tr.Connect(context.Background()); err != ErrStopped {
		t.Fatalf("connect after stop: got %v, want ErrStopped", err)
	}
	if tr.State() != StateStopped {
		t.Errorf("state: got %v, want stopped", tr.State())
	}
	tr.mu.Lock()
	conn := tr.conn
	tr.mu.Unlock()
	if conn != nil {
		t.Error("connection stored after stop")
	}

	if err := tr.Run(context.Background(), true); err != nil {
		t.Errorf("run after stop: %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	tr := NewTransport(TransportConfig{URL: "ws://unused"}, discardLogger())
	tr.Stop()
	tr.Stop()
	if tr.State() != StateStopped {
		t.Errorf("state: got %v, want stopped", tr.State())
	}

	// Run after Stop returns immediately.
	if err := tr.Run(context.Background(), true); err != nil {
		t.Errorf("run after stop: %v", err)
	}
}
