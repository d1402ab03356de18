package dispatcher

import (
	"time"

	"github.com/rs/zerolog"

	"onnxd/internal/channel"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultLoadTimeout = 50 * time.Second
)

// Config encapsulates all tunables for Dispatcher construction.
type Config struct {
	// Opener creates the channel to the worker; Endpoint is passed to it.
	Opener   channel.Opener
	Endpoint string
	// ModelPath is sent with loadModel.
	ModelPath string
	// LoadTimeout bounds the loadModel handshake (default 50s).
	LoadTimeout time.Duration
	// RunTimeout bounds a single in-flight run; zero disables it.
	RunTimeout time.Duration
	// Logger is optional; nil disables logging.
	Logger    *zerolog.Logger
	Publisher EventPublisher
}

// New constructs a Dispatcher from Config, applying defaults.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		opener:      cfg.Opener,
		endpoint:    cfg.Endpoint,
		modelPath:   cfg.ModelPath,
		loadTimeout: cfg.LoadTimeout,
		runTimeout:  cfg.RunTimeout,
		publisher:   cfg.Publisher,
		state:       StateUninitialized,
		startTime:   time.Now(),
	}
	if d.loadTimeout <= 0 {
		d.loadTimeout = defaultLoadTimeout
	}
	if d.runTimeout < 0 {
		d.runTimeout = 0
	}
	if d.publisher == nil {
		d.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("component", "dispatcher").Logger()
	} else {
		d.log = zerolog.Nop()
	}
	return d
}
