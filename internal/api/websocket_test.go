package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type wsReply struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialChat(t *testing.T, env *testEnv) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, msg wsMessage) {
	t.Helper()
	data, _ := json.Marshal(msg)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, last ...string) []wsReply {
	t.Helper()
	var replies []wsReply
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var r wsReply
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		replies = append(replies, r)
		for _, l := range last {
			if r.Type == l {
				return replies
			}
		}
	}
}

func TestWebSocketTurn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.session().SetCredential("sk")
	conn, ctx := dialChat(t, env)

	send(t, ctx, conn, wsMessage{Type: "ping"})
	if got := readUntil(t, ctx, conn, "pong"); len(got) != 1 {
		t.Fatalf("replies = %+v", got)
	}

	send(t, ctx, conn, wsMessage{Type: "chat", Content: "What generates lift?"})
	replies := readUntil(t, ctx, conn, eventDone, eventError)

	var types []string
	for _, r := range replies {
		types = append(types, r.Type)
	}
	if got := strings.Join(types, ","); got != "user,fragment,fragment,done" {
		t.Fatalf("types = %s", got)
	}
	if env.session().Transcript().Len() != 3 {
		t.Errorf("transcript len = %d", env.session().Transcript().Len())
	}
}

func TestWebSocketGated(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, ctx := dialChat(t, env)

	send(t, ctx, conn, wsMessage{Type: "chat", Content: "hello"})
	replies := readUntil(t, ctx, conn, eventError)

	var ev errorEvent
	if err := json.Unmarshal(replies[0].Data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != "gated" {
		t.Errorf("kind = %q", ev.Kind)
	}
	if env.Calls() != 0 {
		t.Errorf("completion calls = %d", env.Calls())
	}
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, ctx := dialChat(t, env)

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	replies := readUntil(t, ctx, conn, eventError)
	if !strings.Contains(string(replies[0].Data), "bad_request") {
		t.Errorf("reply = %s", replies[0].Data)
	}

	send(t, ctx, conn, wsMessage{Type: "dance"})
	replies = readUntil(t, ctx, conn, eventError)
	if !strings.Contains(string(replies[0].Data), "unknown message type") {
		t.Errorf("reply = %s", replies[0].Data)
	}
}
