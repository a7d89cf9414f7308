package flowguard

import (
	"context"
	"fmt"

	"github.com/spherex-xyz/flowguard/internal/server"
)

// Client owns an in-process flow engine. Thread-safe for concurrent
// guarded calls; the engine serializes hook execution internally.
type Client struct {
	cfg    clientConfig
	engine *server.Engine
}

// New creates a Client with the given options. The engine is built from
// the config file, including storage, audit, and notification wiring.
func New(opts ...Option) (*Client, error) {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}

	engine, err := server.NewEngine(context.Background(), cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("flowguard: failed to create engine: %w", err)
	}

	return &Client{cfg: cfg, engine: engine}, nil
}

// Begin starts a new transaction identity and returns it. Subsequent
// guarded calls run under it until the next Begin.
func (c *Client) Begin() string {
	return c.engine.Begin().String()
}

// Check folds a signed routine id sequence and reports whether the
// resulting fingerprint is approved. Engine state is not touched.
func (c *Client) Check(ids []int64) (string, bool) {
	fp, ok := c.engine.Validator.CheckSequence(ids)
	return fp.String(), ok
}

// Status exports the engine snapshot for debugging and audit.
func (c *Client) Status() Status {
	return c.engine.Validator.Status()
}

// Close releases the engine's resources.
func (c *Client) Close() error {
	return c.engine.Close()
}
