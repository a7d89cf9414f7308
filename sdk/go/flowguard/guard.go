package flowguard

import "context"

// GuardedFunc is the function signature that Guard wraps.
type GuardedFunc func(ctx context.Context) (any, error)

// GuardExternal returns a GuardedFunc that runs fn between the boundary
// enter and exit hooks for the given routine id. The sender gate applies
// on both hooks and the call-flow pattern is checked on exit. If either
// hook rejects, a *BlockedError is returned; a blocked exit discards
// fn's result even when fn itself succeeded.
func (c *Client) GuardExternal(id int64, fn GuardedFunc, opts ...GuardOption) GuardedFunc {
	return c.guard(id, fn, true, opts)
}

// Guard returns a GuardedFunc that runs fn between the internal enter
// and exit hooks. The sender gate still applies; the pattern is only
// checked when the call returns to the flow boundary.
func (c *Client) Guard(id int64, fn GuardedFunc, opts ...GuardOption) GuardedFunc {
	return c.guard(id, fn, false, opts)
}

func (c *Client) guard(id int64, fn GuardedFunc, boundary bool, opts []GuardOption) GuardedFunc {
	gcfg := guardConfig{caller: c.cfg.caller}
	for _, o := range opts {
		o(&gcfg)
	}

	return func(ctx context.Context) (any, error) {
		var err error
		if boundary {
			err = c.engine.Validator.EnterExternal(ctx, id, gcfg.caller, nil)
		} else {
			err = c.engine.Validator.EnterInternal(ctx, id, gcfg.caller)
		}
		if err != nil {
			return nil, asBlocked(id, gcfg.caller, err)
		}

		result, fnErr := fn(ctx)

		// The exit hook runs even when fn failed; the depth accounting
		// must stay balanced for the rest of the transaction.
		if boundary {
			err = c.engine.Validator.ExitExternal(ctx, id, gcfg.caller, 0, nil, nil)
		} else {
			err = c.engine.Validator.ExitInternal(ctx, id, gcfg.caller, 0)
		}
		if err != nil {
			return nil, asBlocked(id, gcfg.caller, err)
		}

		return result, fnErr
	}
}
