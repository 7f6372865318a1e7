package store

import (
	"context"
	"sync"

	"github.com/smallnest/milestonedb/log"
)

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// connection owns the single backend handle of a store. Nothing else may
// close the backend.
type connection struct {
	logger log.Logger
	ready  chan struct{}

	mu         sync.Mutex
	state      connState
	backend    Backend
	connectErr error
	// closeRequested is set when Close gave up waiting for the connect
	// attempt. The attempt then ends in stateClosed and releases whatever
	// backend it obtained.
	closeRequested bool
}

// openConnection starts resolving the backend in the background.
func openConnection(ctx context.Context, connector Connector, logger log.Logger) *connection {
	c := &connection{
		logger: logger,
		ready:  make(chan struct{}),
		state:  stateConnecting,
	}

	go func() {
		defer close(c.ready)

		backend, err := connector(ctx)

		c.mu.Lock()
		if c.closeRequested {
			c.state = stateClosed
			c.connectErr = err
			c.mu.Unlock()
			if err == nil && backend != nil {
				c.closeBackend(context.Background(), backend)
			}
			return
		}
		defer c.mu.Unlock()

		switch {
		case err != nil:
			c.connectErr = err
			c.state = stateClosed
			c.logger.Error("connect failed: %v", err)
		case backend == nil:
			c.connectErr = &ConfigurationError{Field: "Connector", Reason: "returned a nil backend"}
			c.state = stateClosed
			c.logger.Error("connect failed: %v", c.connectErr)
		default:
			c.backend = backend
			c.state = stateOpen
			c.logger.Info("connection open")
		}
	}()

	return c
}

// wait blocks until the connect attempt has finished.
func (c *connection) wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve returns the live backend or a ClosedError.
func (c *connection) resolve(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	requested := c.closeRequested
	c.mu.Unlock()
	if requested {
		return nil, ErrClosed
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, c.closedErr()
	}
	return c.backend, nil
}

func (c *connection) closedErr() error {
	if c.connectErr != nil {
		return &ClosedError{Code: ClosedCode, Cause: c.connectErr}
	}
	return ErrClosed
}

// close tears the connection down. The state is Closed afterwards whatever
// the backend reports. If ctx ends before the connect attempt does, the
// attempt is marked for closing and ctx's error is returned.
func (c *connection) close(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		c.mu.Lock()
		if c.state == stateConnecting {
			c.closeRequested = true
			c.mu.Unlock()
			return err
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.state != stateOpen {
		err := c.closedErr()
		c.state = stateClosed
		c.mu.Unlock()
		return err
	}
	backend := c.backend
	c.backend = nil
	c.state = stateClosed
	c.mu.Unlock()

	return c.closeBackend(ctx, backend)
}

func (c *connection) closeBackend(ctx context.Context, backend Backend) error {
	if err := backend.Close(ctx); err != nil {
		c.logger.Error("close failed: %v", err)
		return err
	}
	c.logger.Info("connection closed")
	return nil
}

func (c *connection) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
