package conduit_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/RobertWHurst/conduit"
)

func runPipeline(t *testing.T, pipeline *conduit.Pipeline, method string, data any) error {
	t.Helper()
	message, err := conduit.DecodeMessage(mustFrame(t, method, data))
	if err != nil {
		t.Fatal(err)
	}
	return pipeline.Run(context.Background(), nil, "conn-1", message)
}

func mustFrame(t *testing.T, method string, data any) []byte {
	t.Helper()
	frame, err := json.Marshal(map[string]any{"method": method, "data": data})
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestPipelineMethodHandlerConsumesMessage(t *testing.T) {
	pipeline := conduit.NewPipeline()

	var calls []string
	pipeline.OnMessage("ping", func(ctx *conduit.Context, data json.RawMessage) error {
		calls = append(calls, "ping")
		return nil
	})
	pipeline.OnMessage("ping", func(ctx *conduit.Context, data json.RawMessage) error {
		calls = append(calls, "second ping")
		return nil
	})
	pipeline.Use(func(ctx *conduit.Context) error {
		calls = append(calls, "tail")
		return ctx.Next()
	})

	if err := runPipeline(t, pipeline, "ping", nil); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(calls, []string{"ping"}) {
		t.Errorf("expected only the first ping handler to run, got %v", calls)
	}
}

func TestPipelineUnmatchedMessageIsDropped(t *testing.T) {
	pipeline := conduit.NewPipeline()

	called := false
	pipeline.OnMessage("ping", func(ctx *conduit.Context, data json.RawMessage) error {
		called = true
		return nil
	})

	errorHandlerCalled := false
	pipeline.OnError(func(err error, connectionID string, message *conduit.Message) {
		errorHandlerCalled = true
	})

	if err := runPipeline(t, pipeline, "unknown", "payload"); err != nil {
		t.Fatalf("expected a silent drop, got %v", err)
	}
	if called {
		t.Error("expected ping handler not to run")
	}
	if errorHandlerCalled {
		t.Error("expected error handler not to run for a dropped message")
	}
}

func TestPipelineMiddlewareOrder(t *testing.T) {
	pipeline := conduit.NewPipeline()

	var order []string
	pipeline.Use(func(ctx *conduit.Context) error {
		order = append(order, "first before")
		err := ctx.Next()
		order = append(order, "first after")
		return err
	})
	pipeline.Use(func(ctx *conduit.Context) error {
		order = append(order, "second")
		return ctx.Next()
	})
	pipeline.OnMessage("chat", func(ctx *conduit.Context, data json.RawMessage) error {
		order = append(order, "handler")
		return nil
	})

	if err := runPipeline(t, pipeline, "chat", nil); err != nil {
		t.Fatal(err)
	}

	expected := []string{"first before", "second", "handler", "first after"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestPipelineContextValues(t *testing.T) {
	pipeline := conduit.NewPipeline()

	pipeline.Use(func(ctx *conduit.Context) error {
		ctx.Set("user", "alice")
		return ctx.Next()
	})

	var user any
	pipeline.OnMessage("whoami", func(ctx *conduit.Context, data json.RawMessage) error {
		user = ctx.MustGet("user")
		return nil
	})

	if err := runPipeline(t, pipeline, "whoami", nil); err != nil {
		t.Fatal(err)
	}
	if user != "alice" {
		t.Errorf("expected 'alice', got %v", user)
	}
}

func TestPipelineErrorHandlerReceivesError(t *testing.T) {
	pipeline := conduit.NewPipeline()

	errBoom := errors.New("boom")
	pipeline.OnMessage("explode", func(ctx *conduit.Context, data json.RawMessage) error {
		return errBoom
	})

	var (
		gotErr     error
		gotID      string
		gotMessage *conduit.Message
	)
	pipeline.OnError(func(err error, connectionID string, message *conduit.Message) {
		gotErr = err
		gotID = connectionID
		gotMessage = message
	})

	if err := runPipeline(t, pipeline, "explode", map[string]int{"n": 1}); err != nil {
		t.Fatalf("expected the error handler to absorb the error, got %v", err)
	}
	if gotErr != errBoom {
		t.Errorf("expected the exact returned error, got %v", gotErr)
	}
	if gotID != "conn-1" {
		t.Errorf("expected connection id 'conn-1', got %q", gotID)
	}
	if gotMessage == nil || gotMessage.Method != "explode" || string(gotMessage.Data) != `{"n":1}` {
		t.Errorf("unexpected message %+v", gotMessage)
	}
}

func TestPipelineErrorPropagatesWithoutHandler(t *testing.T) {
	pipeline := conduit.NewPipeline()

	errBoom := errors.New("boom")
	pipeline.Use(func(ctx *conduit.Context) error {
		return ctx.Next()
	})
	pipeline.OnMessage("explode", func(ctx *conduit.Context, data json.RawMessage) error {
		return errBoom
	})

	if err := runPipeline(t, pipeline, "explode", nil); !errors.Is(err, errBoom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestPipelinePanicBecomesHandlerError(t *testing.T) {
	pipeline := conduit.NewPipeline()

	pipeline.OnMessage("explode", func(ctx *conduit.Context, data json.RawMessage) error {
		panic("intentional panic for testing")
	})

	err := runPipeline(t, pipeline, "explode", nil)

	var handlerErr *conduit.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected HandlerError, got %v", err)
	}
	if handlerErr.Value != "intentional panic for testing" {
		t.Errorf("unexpected panic value %v", handlerErr.Value)
	}
	if handlerErr.Method != "explode" || handlerErr.ConnectionID != "conn-1" {
		t.Errorf("unexpected handler error %+v", handlerErr)
	}
	if handlerErr.Stack == "" {
		t.Error("expected a stack trace")
	}
	if !strings.Contains(handlerErr.Error(), "intentional panic for testing") {
		t.Errorf("expected panic value in error message, got %q", handlerErr.Error())
	}
}

func TestPipelinePanicWithErrorUnwraps(t *testing.T) {
	pipeline := conduit.NewPipeline()

	errBoom := errors.New("boom")
	pipeline.Use(func(ctx *conduit.Context) error {
		panic(errBoom)
	})

	if err := runPipeline(t, pipeline, "anything", nil); !errors.Is(err, errBoom) {
		t.Errorf("expected panicked error to unwrap to boom, got %v", err)
	}
}

func TestPipelineNextCalledTwice(t *testing.T) {
	pipeline := conduit.NewPipeline()

	calls := 0
	pipeline.Use(func(ctx *conduit.Context) error {
		if err := ctx.Next(); err != nil {
			return err
		}
		return ctx.Next()
	})
	pipeline.OnMessage("count", func(ctx *conduit.Context, data json.RawMessage) error {
		calls++
		return nil
	})

	if err := runPipeline(t, pipeline, "count", nil); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected the handler to run once, got %d", calls)
	}
}

func TestPipelineErrorHaltsChain(t *testing.T) {
	pipeline := conduit.NewPipeline()

	errStop := errors.New("stop")
	var nextErr error
	reached := false

	pipeline.Use(func(ctx *conduit.Context) error {
		_ = ctx.Next()
		// The chain already failed; another Next must not run anything.
		nextErr = ctx.Next()
		return nextErr
	})
	pipeline.Use(func(ctx *conduit.Context) error {
		return errStop
	})
	pipeline.Use(func(ctx *conduit.Context) error {
		reached = true
		return nil
	})

	err := runPipeline(t, pipeline, "anything", nil)
	if !errors.Is(err, errStop) {
		t.Errorf("expected stop, got %v", err)
	}
	if !errors.Is(nextErr, errStop) {
		t.Errorf("expected Next to keep returning stop, got %v", nextErr)
	}
	if reached {
		t.Error("expected middleware after the failure not to run")
	}
}

func TestPipelineOnErrorReplacesHandler(t *testing.T) {
	pipeline := conduit.NewPipeline()

	pipeline.Use(func(ctx *conduit.Context) error {
		return errors.New("boom")
	})

	firstCalled := false
	secondCalled := false
	pipeline.OnError(func(err error, connectionID string, message *conduit.Message) {
		firstCalled = true
	})
	pipeline.OnError(func(err error, connectionID string, message *conduit.Message) {
		secondCalled = true
	})

	if err := runPipeline(t, pipeline, "anything", nil); err != nil {
		t.Fatal(err)
	}
	if firstCalled {
		t.Error("expected the replaced error handler not to run")
	}
	if !secondCalled {
		t.Error("expected the latest error handler to run")
	}
}

func TestPipelinePatternHandler(t *testing.T) {
	pipeline := conduit.NewPipeline()

	var matched []string
	pipeline.OnMessagePattern(`chat\..+`, func(ctx *conduit.Context, data json.RawMessage) error {
		matched = append(matched, ctx.Method())
		return nil
	})

	for _, method := range []string{"chat.join", "chat", "groupchat.join", "chat.leave"} {
		if err := runPipeline(t, pipeline, method, nil); err != nil {
			t.Fatal(err)
		}
	}

	expected := []string{"chat.join", "chat.leave"}
	if !reflect.DeepEqual(matched, expected) {
		t.Errorf("expected %v, got %v", expected, matched)
	}
}

func TestPipelineSendWithoutCommands(t *testing.T) {
	pipeline := conduit.NewPipeline()

	var sendErr error
	pipeline.OnMessage("ping", func(ctx *conduit.Context, data json.RawMessage) error {
		sendErr = ctx.Send("pong", nil)
		return nil
	})

	if err := runPipeline(t, pipeline, "ping", nil); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(sendErr, conduit.ErrNoConnection) {
		t.Errorf("expected ErrNoConnection, got %v", sendErr)
	}
}

func TestPipelineRegistrationValidation(t *testing.T) {
	tests := []struct {
		name     string
		register func(p *conduit.Pipeline)
	}{
		{"use without handlers", func(p *conduit.Pipeline) { p.Use() }},
		{"use nil handler", func(p *conduit.Pipeline) { p.Use(nil) }},
		{"empty method", func(p *conduit.Pipeline) {
			p.OnMessage("", func(*conduit.Context, json.RawMessage) error { return nil })
		}},
		{"nil message handler", func(p *conduit.Pipeline) { p.OnMessage("ping", nil) }},
		{"invalid pattern", func(p *conduit.Pipeline) {
			p.OnMessagePattern("(", func(*conduit.Context, json.RawMessage) error { return nil })
		}},
		{"nil remote", func(p *conduit.Pipeline) { p.Mount("data", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				recovered := recover()
				if _, ok := recovered.(*conduit.ValidationError); !ok {
					t.Errorf("expected a *ValidationError panic, got %v", recovered)
				}
			}()
			tt.register(conduit.NewPipeline())
		})
	}
}

func TestPipelineRunRejectsNilMessage(t *testing.T) {
	pipeline := conduit.NewPipeline()
	called := false
	pipeline.Use(func(ctx *conduit.Context) error {
		called = true
		return ctx.Next()
	})

	err := pipeline.Run(context.Background(), nil, "conn-1", nil)
	var validationErr *conduit.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if called {
		t.Error("expected the chain not to run")
	}
}
