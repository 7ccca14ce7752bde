package executor

import (
	"maps"
	"time"
)

// Locale is the locale pinned by WithLocale. Version-control clients print
// non-ASCII file names and messages differently depending on it.
const Locale = "en_US.UTF-8"

// Options controls how a command runs. Commands run once; callers decide
// whether a failure is worth repeating.
type Options struct {
	// Timeout bounds the run. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Env is added to the inherited environment.
	Env map[string]string
}

// Option mutates Options.
type Option func(*Options)

func (o Options) with(opts ...Option) Options {
	o.Env = maps.Clone(o.Env)
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout bounds the command.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithEnvVar sets one environment variable for the command.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithLocale pins LC_CTYPE and LANG to Locale.
func WithLocale() Option {
	return func(o *Options) {
		WithEnvVar("LC_CTYPE", Locale)(o)
		WithEnvVar("LANG", Locale)(o)
	}
}
