package conduit

import (
	"runtime/debug"
	"strings"
)

// Next runs the next middleware in the chain and returns its result. When
// there is no further middleware the message is dropped and Next returns
// nil.
//
// Once any middleware has failed, Next returns that error without running
// anything else. Calling Next a second time from the same middleware does
// nothing.
func (c *Context) Next() error {
	if c.err != nil {
		return c.err
	}

	// Only the middleware currently executing may advance the cursor. If the
	// cursor already moved past it, this is a repeated call.
	if c.index != c.active {
		return nil
	}

	c.index += 1
	if c.index >= len(c.entries) {
		c.dropped = true
		return nil
	}

	previous := c.active
	c.active = c.index
	err := execWithCtxRecovery(c, c.entries[c.index])
	c.active = previous

	if err != nil && c.err == nil {
		c.err = err
	}
	return err
}

func execWithCtxRecovery(ctx *Context, entry HandlerFunc) (err error) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			stack := string(debug.Stack())
			stackLines := strings.Split(stack, "\n")
			if len(stackLines) > 6 {
				stack = strings.Join(stackLines[6:], "\n")
			}
			err = &HandlerError{
				ConnectionID: ctx.connectionID,
				Method:       ctx.message.Method,
				Value:        maybeErr,
				Stack:        stack,
			}
		}
	}()
	return entry(ctx)
}
