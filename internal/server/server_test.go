package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
)

func writeServerConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testServer(t *testing.T, configYAML string) *Server {
	t.Helper()
	srv, err := New(context.Background(), Config{ConfigPath: writeServerConfig(t, configYAML)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

const baseConfig = `
mode: continuity
senders: [svc-a]
patterns:
  - name: base
    ids: [1, -1]
`

func TestHandleBeginAdvancesSession(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	_, out1, err := srv.handleBegin(ctx, nil, BeginInput{})
	if err != nil {
		t.Fatal(err)
	}
	_, out2, err := srv.handleBegin(ctx, nil, BeginInput{})
	if err != nil {
		t.Fatal(err)
	}
	if out1.Session == out2.Session {
		t.Error("expected distinct transaction identities")
	}

	_, st, err := srv.handleStatus(ctx, nil, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != "continuity" {
		t.Errorf("mode = %q, want continuity", st.Mode)
	}
}

func TestHandleEnterExitApprovedFlow(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	res, out, err := srv.handleEnter(ctx, nil, HookInput{ID: 1, Caller: "svc-a"})
	if err != nil || res != nil {
		t.Fatalf("enter: res=%v err=%v", res, err)
	}
	if out.Depth != 2 {
		t.Errorf("depth after enter = %d, want 2", out.Depth)
	}

	res, out, err = srv.handleExit(ctx, nil, HookInput{ID: 1, Caller: "svc-a"})
	if err != nil || res != nil {
		t.Fatalf("exit: res=%v err=%v", res, err)
	}
	if out.Blocked {
		t.Errorf("approved flow reported blocked: %s", out.Reason)
	}
}

func TestHandleEnterBlocksUnknownSender(t *testing.T) {
	srv := testServer(t, baseConfig)

	res, out, err := srv.handleEnter(context.Background(), nil, HookInput{ID: 1, Caller: "svc-evil"})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || !res.IsError {
		t.Fatal("expected IsError result for blocked sender")
	}
	if !out.Blocked || out.Reason == "" {
		t.Errorf("blocked output missing details: %+v", out)
	}
}

func TestHandleExitBlocksUnknownPattern(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	if _, _, err := srv.handleEnter(ctx, nil, HookInput{ID: 7, Caller: "svc-a"}); err != nil {
		t.Fatal(err)
	}
	res, out, err := srv.handleExit(ctx, nil, HookInput{ID: 7, Caller: "svc-a"})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || !res.IsError || !out.Blocked {
		t.Fatalf("expected blocked flow, got res=%v out=%+v", res, out)
	}
}

func TestHandleCheckDryRun(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	_, out, err := srv.handleCheck(ctx, nil, CheckInput{IDs: []int64{1, -1}})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Allowed {
		t.Error("approved sequence reported blocked")
	}
	if out.Fingerprint != fingerprint.FoldSequence([]int64{1, -1}).String() {
		t.Errorf("wrong fingerprint: %s", out.Fingerprint)
	}

	_, out, err = srv.handleCheck(ctx, nil, CheckInput{IDs: []int64{2, -2}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Allowed {
		t.Error("unknown sequence reported approved")
	}
}

func TestHandleRulesSwitchesMode(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	_, out, err := srv.handleRules(ctx, nil, RulesInput{Principal: "anyone", Mode: "prefix_flow"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Mode != "prefix_flow" {
		t.Errorf("mode = %q, want prefix_flow", out.Mode)
	}

	if _, _, err := srv.handleRules(ctx, nil, RulesInput{Principal: "anyone", Mode: "turbo"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestHandleRulesEnforcesOperators(t *testing.T) {
	srv := testServer(t, baseConfig+"operators: [alice]\n")
	ctx := context.Background()

	if _, _, err := srv.handleRules(ctx, nil, RulesInput{Principal: "mallory", Mode: "off"}); err == nil {
		t.Error("expected authorization error for non-operator")
	}
	if _, _, err := srv.handleRules(ctx, nil, RulesInput{Principal: "alice", Mode: "off"}); err != nil {
		t.Errorf("operator rejected: %v", err)
	}
}

func TestHandleAllowManagesLists(t *testing.T) {
	srv := testServer(t, baseConfig)
	ctx := context.Background()

	_, out, err := srv.handleAllow(ctx, nil, AllowInput{
		Principal: "anyone", Action: "add", Kind: "sender", Keys: []string{"svc-b", "svc-c"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Applied != 2 {
		t.Errorf("applied = %d, want 2", out.Applied)
	}

	if _, _, err := srv.handleEnter(ctx, nil, HookInput{ID: 1, Caller: "svc-b"}); err != nil {
		t.Fatal(err)
	}

	pattern := fingerprint.FoldSequence([]int64{9, -9}).String()
	if _, _, err := srv.handleAllow(ctx, nil, AllowInput{
		Principal: "anyone", Action: "add", Kind: "pattern", Keys: []string{pattern},
	}); err != nil {
		t.Fatal(err)
	}
	_, check, err := srv.handleCheck(ctx, nil, CheckInput{IDs: []int64{9, -9}})
	if err != nil {
		t.Fatal(err)
	}
	if !check.Allowed {
		t.Error("added pattern not approved")
	}

	if _, _, err := srv.handleAllow(ctx, nil, AllowInput{
		Principal: "anyone", Action: "drop", Kind: "sender", Keys: []string{"svc-b"},
	}); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, _, err := srv.handleAllow(ctx, nil, AllowInput{
		Principal: "anyone", Action: "add", Kind: "widget", Keys: []string{"x"},
	}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestReloadKeepsRuntimeState(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "state.db")

	content := baseConfig + "storage:\n  path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := New(context.Background(), Config{ConfigPath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	ctx := context.Background()

	// Runtime change, then reload: the removal survives because it is
	// persisted, even though the config still seeds svc-a.
	if _, _, err := srv.handleAllow(ctx, nil, AllowInput{
		Principal: "anyone", Action: "remove", Kind: "sender", Keys: []string{"svc-a"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := srv.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	snap := srv.currentEngine().Validator.Senders()
	rec, ok := snap["svc-a"]
	if !ok {
		t.Fatal("sender record lost across reload")
	}
	if rec.Permitted {
		t.Error("config seed resurrected a removed sender across reload")
	}
}

func TestReloaderWatchesOnlyItsConfigs(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(baseConfig), 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := New(context.Background(), Config{ConfigPath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	r, err := NewReloader(srv, []string{cfgPath, "", "/nonexistent/config.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	defer r.watcher.Close()

	cases := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write to config", fsnotify.Event{Name: cfgPath, Op: fsnotify.Write}, true},
		{"atomic replace", fsnotify.Event{Name: cfgPath, Op: fsnotify.Create}, true},
		{"rename over config", fsnotify.Event{Name: cfgPath, Op: fsnotify.Rename}, true},
		{"sibling file", fsnotify.Event{Name: filepath.Join(dir, "other.yaml"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: cfgPath, Op: fsnotify.Chmod}, false},
	}
	for _, tc := range cases {
		if got := r.relevant(tc.event); got != tc.want {
			t.Errorf("%s: relevant = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEngineDefaultsToMemoryBackend(t *testing.T) {
	engine, err := NewEngine(context.Background(), writeServerConfig(t, baseConfig))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	if engine.Config.Storage.Path != "" {
		t.Errorf("unexpected storage path: %s", engine.Config.Storage.Path)
	}
	if st := engine.Validator.Status(); st.Patterns != 1 || st.Senders != 1 {
		t.Errorf("seeds not applied: %+v", st)
	}
}
