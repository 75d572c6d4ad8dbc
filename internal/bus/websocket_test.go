package bus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoBusServer is a minimal stand-in for the platform messagebus: every
// frame a client sends is broadcast back to all connected clients.
type echoBusServer struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func (s *echoBusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		for _, c := range s.conns {
			_ = c.WriteMessage(websocket.TextMessage, raw)
		}
		s.mu.Unlock()
	}
}

func (s *echoBusServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8181/core", BuildURL("localhost", 8181, "/core", false))
	assert.Equal(t, "wss://bus.local:443/core", BuildURL("bus.local", 443, "/core", true))
}

func TestWSClientRoundTrip(t *testing.T) {
	srv := &echoBusServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.closeAll()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := DialWS(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	received := make(chan *Message, 1)
	client.Subscribe("speak", func(msg *Message) { received <- msg })

	require.NoError(t, client.Publish(NewMessage("speak", map[string]any{"utterance": "hello"})))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg.Data["utterance"])
	case <-time.After(2 * time.Second):
		t.Fatal("no frame echoed back")
	}
}

func TestWSClientRequest(t *testing.T) {
	srv := &echoBusServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.closeAll()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := DialWS(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	// A second client plays the responding skill.
	skill, err := DialWS(wsURL, nil)
	require.NoError(t, err)
	defer skill.Close()
	skill.Subscribe("skill.converse.request", func(msg *Message) {
		_ = skill.Publish(msg.Reply("skill.converse.response", map[string]any{"result": true}))
	})

	reply, err := client.Request(
		NewMessage("skill.converse.request", map[string]any{"skill_id": "timer-skill"}),
		"skill.converse.response", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, true, reply.Data["result"])
}

func TestWSClientPublishAfterClose(t *testing.T) {
	srv := &echoBusServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.closeAll()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := DialWS(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.Error(t, client.Publish(NewMessage("speak", nil)))
}
