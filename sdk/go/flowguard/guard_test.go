package flowguard

import (
	"context"
	"errors"
	"testing"
)

func TestGuardExternalAllowsApprovedFlow(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	inner := func(ctx context.Context) (any, error) {
		return "ok", nil
	}
	guarded := c.GuardExternal(1, inner)

	result, err := guarded(context.Background())
	if err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result \"ok\", got %v", result)
	}
}

func TestGuardExternalBlocksUnknownSender(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	called := false
	inner := func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	}
	guarded := c.GuardExternal(1, inner, GuardWithCaller("svc-evil"))

	_, err := guarded(context.Background())
	if !IsBlocked(err) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if called {
		t.Error("inner function should not be called on a blocked entry")
	}
}

func TestGuardExternalBlocksUnknownPattern(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	inner := func(ctx context.Context) (any, error) {
		return "secret", nil
	}
	guarded := c.GuardExternal(9, inner)

	result, err := guarded(context.Background())
	if !IsBlocked(err) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if result != nil {
		t.Error("blocked exit must discard the inner result")
	}

	var be *BlockedError
	if errors.As(err, &be) && be.ID != 9 {
		t.Errorf("blocked routine id = %d, want 9", be.ID)
	}
}

func TestGuardNestedInternalCall(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	inner := c.Guard(2, func(ctx context.Context) (any, error) {
		return "inner", nil
	})
	outer := c.GuardExternal(1, func(ctx context.Context) (any, error) {
		return inner(ctx)
	})

	result, err := outer(context.Background())
	if err != nil {
		t.Fatalf("nested approved flow blocked: %v", err)
	}
	if result != "inner" {
		t.Errorf("expected result \"inner\", got %v", result)
	}
}

func TestGuardInternalBlocksUnknownSender(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	called := false
	inner := c.Guard(2, func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	}, GuardWithCaller("svc-evil"))
	outer := c.GuardExternal(1, func(ctx context.Context) (any, error) {
		return inner(ctx)
	})

	_, err := outer(context.Background())
	if !IsBlocked(err) {
		t.Fatalf("expected *BlockedError from nested hook, got %v", err)
	}
	if called {
		t.Error("inner function should not be called on a blocked nested entry")
	}
}

func TestGuardExitRunsWhenInnerFails(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	innerErr := errors.New("downstream unavailable")
	guarded := c.GuardExternal(1, func(ctx context.Context) (any, error) {
		return nil, innerErr
	})

	_, err := guarded(context.Background())
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected inner error to propagate, got %v", err)
	}
	if got := c.Status().Depth; got != 1 {
		t.Errorf("depth after failed inner call = %d, want baseline 1", got)
	}
}

func TestGuardRepeatedFlowsUnderContinuity(t *testing.T) {
	c := newTestClient(t)
	c.Begin()

	guarded := c.GuardExternal(1, func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	for i := 0; i < 3; i++ {
		if _, err := guarded(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
