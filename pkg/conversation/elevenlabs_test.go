package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsServer runs a fake agent platform endpoint. The handler receives each
// accepted connection on its own goroutine.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTestClient(t *testing.T, url string) *ElevenLabs {
	t.Helper()

	client, err := NewElevenLabs(
		WithAPIKey("test-key"),
		WithAgentID("agent-123"),
		WithBaseURL(url),
		WithReadTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestElevenLabsWireProtocol(t *testing.T) {
	t.Run("audio is sent as user_audio_chunk", func(t *testing.T) {
		received := make(chan map[string]string, 1)
		url := wsServer(t, func(conn *websocket.Conn) {
			defer conn.Close()
			var msg map[string]string
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		})

		client := dialTestClient(t, url)

		audio := []byte{0x01, 0x02, 0x03}
		if err := client.SendAudio(audio); err != nil {
			t.Fatalf("send audio failed: %v", err)
		}

		select {
		case msg := <-received:
			decoded, err := base64.StdEncoding.DecodeString(msg["user_audio_chunk"])
			if err != nil {
				t.Fatalf("chunk is not base64: %v", err)
			}
			if string(decoded) != string(audio) {
				t.Error("audio payload mismatch")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("server never received the audio chunk")
		}
	})

	t.Run("ping is answered with pong carrying event_id", func(t *testing.T) {
		pong := make(chan map[string]any, 1)
		url := wsServer(t, func(conn *websocket.Conn) {
			defer conn.Close()
			_ = conn.WriteJSON(map[string]any{
				"type":       "ping",
				"ping_event": map[string]any{"event_id": 42},
			})
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			pong <- msg
		})

		dialTestClient(t, url)

		select {
		case msg := <-pong:
			if msg["type"] != "pong" {
				t.Errorf("expected pong, got %v", msg["type"])
			}
			if id, _ := msg["event_id"].(float64); int(id) != 42 {
				t.Errorf("expected event_id 42, got %v", msg["event_id"])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no pong received")
		}
	})

	t.Run("agent audio event is decoded", func(t *testing.T) {
		speech := []byte("pcm-audio")
		url := wsServer(t, func(conn *websocket.Conn) {
			defer conn.Close()
			_ = conn.WriteJSON(map[string]any{
				"type": "audio",
				"audio_event": map[string]any{
					"event_id":       1,
					"audio_base_64":  base64.StdEncoding.EncodeToString(speech),
				},
			})
			// Hold the connection open until the test finishes.
			conn.ReadMessage()
		})

		client, err := NewElevenLabs(
			WithAPIKey("test-key"),
			WithAgentID("agent-123"),
			WithBaseURL(url),
		)
		if err != nil {
			t.Fatal(err)
		}

		got := make(chan []byte, 1)
		client.OnAudio(func(audio []byte) { got <- audio })

		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer client.Close()

		select {
		case audio := <-got:
			if string(audio) != string(speech) {
				t.Error("decoded audio mismatch")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no audio delivered")
		}
	})

	t.Run("client tool call round trip", func(t *testing.T) {
		resultMsg := make(chan map[string]any, 1)
		url := wsServer(t, func(conn *websocket.Conn) {
			defer conn.Close()
			_ = conn.WriteJSON(map[string]any{
				"type": "client_tool_call",
				"client_tool_call": map[string]any{
					"tool_name":    "identify_cash",
					"tool_call_id": "call-7",
				},
			})
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			resultMsg <- msg
		})

		client, err := NewElevenLabs(
			WithAPIKey("test-key"),
			WithAgentID("agent-123"),
			WithBaseURL(url),
		)
		if err != nil {
			t.Fatal(err)
		}

		calls := make(chan ToolCall, 1)
		client.OnToolCall(func(call ToolCall) { calls <- call })

		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer client.Close()

		var call ToolCall
		select {
		case call = <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("no tool call delivered")
		}
		if call.ID != "call-7" || call.Name != "identify_cash" {
			t.Fatalf("unexpected tool call: %+v", call)
		}

		if err := client.SubmitToolResult(call.ID, "Two twenty-pound notes.", false); err != nil {
			t.Fatalf("submit failed: %v", err)
		}

		select {
		case msg := <-resultMsg:
			if msg["type"] != "client_tool_result" {
				t.Errorf("expected client_tool_result, got %v", msg["type"])
			}
			if msg["tool_call_id"] != "call-7" {
				t.Errorf("call id mismatch: %v", msg["tool_call_id"])
			}
			if isErr, _ := msg["is_error"].(bool); isErr {
				t.Error("is_error should be false")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("server never received the tool result")
		}
	})

	t.Run("server close triggers one disconnect callback", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn) {
			conn.Close()
		})

		client, err := NewElevenLabs(
			WithAPIKey("test-key"),
			WithAgentID("agent-123"),
			WithBaseURL(url),
		)
		if err != nil {
			t.Fatal(err)
		}

		disconnects := make(chan error, 2)
		client.OnDisconnect(func(err error) { disconnects <- err })

		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		select {
		case err := <-disconnects:
			if err == nil {
				t.Error("abrupt close should report a non-nil error")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no disconnect callback")
		}

		// Close after the remote failure must not fire a second callback.
		_ = client.Close()
		select {
		case <-disconnects:
			t.Error("disconnect callback fired twice")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("double connect rejected", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn) {
			// Hold open.
			conn.ReadMessage()
			conn.Close()
		})

		client := dialTestClient(t, url)
		if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
	})

	t.Run("send before connect rejected", func(t *testing.T) {
		client, err := NewElevenLabs(
			WithAPIKey("test-key"),
			WithAgentID("agent-123"),
		)
		if err != nil {
			t.Fatal(err)
		}

		if err := client.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}
