package internal

// Modes select the front end the daemon serves.
const (
	ModeServe = "serve"
	ModeMCP   = "mcp"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	mode   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode selects the HTTP API (ModeServe, the default) or the MCP stdio
// server (ModeMCP).
func WithMode(mode string) Option {
	return func(a *application) {
		a.mode = mode
	}
}
