package set_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/RobertWHurst/conduit"
	"github.com/RobertWHurst/conduit/middleware/set"
	"github.com/coder/websocket"
)

func roundTrip(t *testing.T, conn *websocket.Conn, method string) conduit.Message {
	t.Helper()
	ctx := context.Background()
	msgBytes, _ := json.Marshal(map[string]string{"method": method})
	if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
		t.Fatal(err)
	}
	_, respBytes, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var response conduit.Message
	if err := json.Unmarshal(respBytes, &response); err != nil {
		t.Fatal(err)
	}
	return response
}

func TestMiddleware(t *testing.T) {
	server := conduit.NewServer()
	server.Use(set.Middleware("apiVersion", "v1"))
	server.Use(set.Middleware("config", map[string]int{"timeout": 30}))

	server.OnMessage("test", func(ctx *conduit.Context, data json.RawMessage) error {
		version, ok := ctx.Get("apiVersion")
		if !ok {
			t.Error("expected apiVersion to be set")
		}
		if version != "v1" {
			t.Errorf("expected 'v1', got %v", version)
		}

		config := ctx.MustGet("config").(map[string]int)
		if config["timeout"] != 30 {
			t.Errorf("expected timeout 30, got %d", config["timeout"])
		}

		return ctx.Send("test", "ok")
	})

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	conn, _, err := websocket.Dial(context.Background(), httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if response := roundTrip(t, conn, "test"); string(response.Data) != `"ok"` {
		t.Errorf("expected 'ok', got %s", response.Data)
	}
}

func TestMiddlewareValueDoesNotPersistAcrossMessages(t *testing.T) {
	server := conduit.NewServer()
	server.Use(set.Middleware("counter", 0))

	server.OnMessage("increment", func(ctx *conduit.Context, data json.RawMessage) error {
		counter := ctx.MustGet("counter").(int)
		ctx.Set("counter", counter+1)
		return ctx.Send("increment", counter+1)
	})
	server.OnMessage("check", func(ctx *conduit.Context, data json.RawMessage) error {
		return ctx.Send("check", ctx.MustGet("counter").(int))
	})

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	conn, _, err := websocket.Dial(context.Background(), httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	roundTrip(t, conn, "increment")
	if response := roundTrip(t, conn, "check"); string(response.Data) != "0" {
		t.Errorf("expected counter to be reset to 0, got %s", response.Data)
	}
}
