package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/RobertWHurst/conduit"
)

func main() {
	server := conduit.NewServer()
	tickers := &tickerSet{stops: map[string]chan struct{}{}}

	server.OnMessage("time.start", func(ctx *conduit.Context, data json.RawMessage) error {
		fmt.Println("Starting time for", ctx.ConnectionID())
		stop, ok := tickers.start(ctx.ConnectionID())
		if !ok {
			return nil
		}

		// Handlers run on the connection's read loop, so the ticker runs on
		// its own goroutine and sends through Commands.
		commands := ctx.Commands()
		id := ctx.ConnectionID()
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case now := <-ticker.C:
					if err := commands.Send(id, "time", map[string]any{"time": now.Unix()}); err != nil {
						fmt.Println("Error sending time:", err)
						tickers.stop(id)
						return
					}
				}
			}
		}()
		return nil
	})

	server.OnMessage("time.stop", func(ctx *conduit.Context, data json.RawMessage) error {
		fmt.Println("Stopping time for", ctx.ConnectionID())
		tickers.stop(ctx.ConnectionID())
		return nil
	})

	server.OnClose(func(id string, status conduit.Status) {
		tickers.stop(id)
	})

	http.Handle("/", server)
	fmt.Println("Starting server on port 8167")
	if err := http.ListenAndServe(":8167", nil); err != nil {
		fmt.Println("Error starting server:", err)
	}
}

type tickerSet struct {
	mx    sync.Mutex
	stops map[string]chan struct{}
}

func (ts *tickerSet) start(id string) (chan struct{}, bool) {
	ts.mx.Lock()
	defer ts.mx.Unlock()
	if _, running := ts.stops[id]; running {
		return nil, false
	}
	stop := make(chan struct{})
	ts.stops[id] = stop
	return stop, true
}

func (ts *tickerSet) stop(id string) {
	ts.mx.Lock()
	defer ts.mx.Unlock()
	if stop, ok := ts.stops[id]; ok {
		close(stop)
		delete(ts.stops, id)
	}
}
