// Package flowguard provides in-process call-flow enforcement for Go
// services. It tracks the nested call sequence of each transaction as a
// rolling fingerprint and blocks any flow whose shape was never approved,
// at boundaries the guarded code cannot bypass.
//
// Usage:
//
//	fg, err := flowguard.New(flowguard.WithCaller("svc-a"))
//	guarded := fg.GuardExternal(1, myHandler)
//	result, err := guarded(ctx)
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/spherex-xyz/flowguard/sdk/go/flowguard.
package flowguard
