package flowguard

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	caller     string
}

// WithConfig sets the path to the config YAML file. Empty uses the
// default location (~/.flowguard/config.yaml).
func WithConfig(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithCaller sets the sender identity presented on guard hooks.
func WithCaller(caller string) Option {
	return func(c *clientConfig) { c.caller = caller }
}

// GuardOption configures a single Guard call.
type GuardOption func(*guardConfig)

type guardConfig struct {
	caller string
}

// GuardWithCaller overrides the client-level caller for this guard.
func GuardWithCaller(caller string) GuardOption {
	return func(g *guardConfig) { g.caller = caller }
}
