package conduit_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RobertWHurst/conduit"
)

func TestContextGetSet(t *testing.T) {
	pipeline := conduit.NewPipeline()

	pipeline.Use(func(ctx *conduit.Context) error {
		ctx.Set("user", "alice")
		ctx.Set("count", 3)
		return ctx.Next()
	})

	checked := false
	pipeline.OnMessage("check", func(ctx *conduit.Context, data json.RawMessage) error {
		checked = true
		if user, ok := ctx.Get("user"); !ok || user != "alice" {
			t.Errorf("expected 'alice', got %v", user)
		}
		if count, ok := ctx.Get("count"); !ok || count != 3 {
			t.Errorf("expected 3, got %v", count)
		}
		if _, ok := ctx.Get("missing"); ok {
			t.Error("expected missing key to be absent")
		}
		return nil
	})

	if err := runPipeline(t, pipeline, "check", nil); err != nil {
		t.Fatal(err)
	}
	if !checked {
		t.Fatal("expected handler to run")
	}
}

func TestContextMustGetPanicsOnMissingKey(t *testing.T) {
	pipeline := conduit.NewPipeline()
	pipeline.OnMessage("check", func(ctx *conduit.Context, data json.RawMessage) error {
		_ = ctx.MustGet("missing")
		return nil
	})

	err := runPipeline(t, pipeline, "check", nil)

	var handlerErr *conduit.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected HandlerError, got %v", err)
	}
	if !strings.Contains(handlerErr.Error(), "missing") {
		t.Errorf("expected the key in the error, got %q", handlerErr.Error())
	}
}

func TestContextMessageLevelStorageDoesNotPersist(t *testing.T) {
	pipeline := conduit.NewPipeline()

	pipeline.OnMessage("set", func(ctx *conduit.Context, data json.RawMessage) error {
		ctx.Set("value", "set")
		return nil
	})

	leaked := false
	pipeline.OnMessage("get", func(ctx *conduit.Context, data json.RawMessage) error {
		_, leaked = ctx.Get("value")
		return nil
	})

	if err := runPipeline(t, pipeline, "set", nil); err != nil {
		t.Fatal(err)
	}
	if err := runPipeline(t, pipeline, "get", nil); err != nil {
		t.Fatal(err)
	}
	if leaked {
		t.Error("expected message-level values to be cleared between messages")
	}
}

func TestContextAccessors(t *testing.T) {
	pipeline := conduit.NewPipeline()

	checked := false
	pipeline.OnMessage("info", func(ctx *conduit.Context, data json.RawMessage) error {
		checked = true
		if ctx.ConnectionID() != "conn-1" {
			t.Errorf("expected 'conn-1', got %q", ctx.ConnectionID())
		}
		if ctx.Method() != "info" || ctx.Message().Method != "info" {
			t.Errorf("unexpected method %q", ctx.Method())
		}
		if string(ctx.Message().Data) != string(data) {
			t.Errorf("expected handler data to match the message, got %s", data)
		}
		if ctx.Commands() != nil {
			t.Error("expected no commands when run without a server")
		}
		if ctx.Err() != nil {
			t.Errorf("expected no error yet, got %v", ctx.Err())
		}
		return nil
	})

	if err := runPipeline(t, pipeline, "info", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if !checked {
		t.Fatal("expected handler to run")
	}
}

func TestContextErrAfterFailure(t *testing.T) {
	pipeline := conduit.NewPipeline()

	errBoom := errors.New("boom")
	var seen error
	pipeline.Use(func(ctx *conduit.Context) error {
		err := ctx.Next()
		seen = ctx.Err()
		return err
	})
	pipeline.Use(func(ctx *conduit.Context) error {
		return errBoom
	})

	_ = runPipeline(t, pipeline, "x", nil)
	if seen != errBoom {
		t.Errorf("expected Err to report boom, got %v", seen)
	}
}

func TestContextSetContext(t *testing.T) {
	type key struct{}

	pipeline := conduit.NewPipeline()
	pipeline.Use(func(ctx *conduit.Context) error {
		ctx.SetContext(context.WithValue(ctx.Context(), key{}, "traced"))
		return ctx.Next()
	})

	var value any
	pipeline.OnMessage("x", func(ctx *conduit.Context, data json.RawMessage) error {
		value = ctx.Context().Value(key{})
		return nil
	})

	if err := runPipeline(t, pipeline, "x", nil); err != nil {
		t.Fatal(err)
	}
	if value != "traced" {
		t.Errorf("expected replaced context to reach the handler, got %v", value)
	}
}

func TestContextDeadline(t *testing.T) {
	server := newTestServer(conduit.WithMessageTimeout(time.Minute))

	deadlines := make(chan time.Time, 1)
	server.OnMessage("deadline", func(ctx *conduit.Context, data json.RawMessage) error {
		deadline, ok := ctx.Context().Deadline()
		if !ok {
			t.Error("expected a deadline")
		}
		deadlines <- deadline
		return nil
	})

	conn, _ := server.connect(t)
	defer conn.peerClose(conduit.StatusNormalClosure)

	before := time.Now()
	conn.sendIncoming(t, "deadline", nil)

	select {
	case deadline := <-deadlines:
		if deadline.Before(before.Add(59*time.Second)) || deadline.After(time.Now().Add(time.Minute)) {
			t.Errorf("unexpected deadline %v", deadline)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handler")
	}
}
