package conduit

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// upgradeGate holds at most one GateFunc.
type upgradeGate struct {
	mu sync.RWMutex
	fn GateFunc
}

func (g *upgradeGate) set(fn GateFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = fn
}

// decide runs the gate for req and waits for its verdict. Without a gate the
// request proceeds. The wait ends early if the request is cancelled or the
// timeout elapses, both of which count as a rejection.
func (g *upgradeGate) decide(req *http.Request, timeout time.Duration) (bool, error) {
	g.mu.RLock()
	fn := g.fn
	g.mu.RUnlock()

	if fn == nil {
		return true, nil
	}

	verdict := make(chan bool, 1)
	var once sync.Once
	proceed := func() { once.Do(func() { verdict <- true }) }
	reject := func() { once.Do(func() { verdict <- false }) }

	if err := runGate(fn, proceed, reject, req); err != nil {
		reject()
		return false, err
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case ok := <-verdict:
		return ok, nil
	case <-req.Context().Done():
		reject()
		return false, req.Context().Err()
	case <-timeoutC:
		// The gate may have proceeded at the same moment, in which case
		// reject is a no-op and the verdict is already buffered.
		reject()
		if <-verdict {
			return true, nil
		}
		return false, ErrGateTimeout
	}
}

func runGate(fn GateFunc, proceed, reject func(), req *http.Request) (err error) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			err = fmt.Errorf("upgrade gate panicked: %v", maybeErr)
		}
	}()
	fn(proceed, reject, req)
	return nil
}
