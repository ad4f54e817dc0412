package pool

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultMaxActive          = 2
	defaultMaxWaitTime        = time.Second * 5
	defaultValidationInterval = time.Second * 5
	defaultMaxIdleTime        = time.Minute
)

// Options configure a Pool. Every field except Logger can also be changed at
// runtime through the corresponding setter on Pool.
type Options struct {
	// MaxActive is the hard cap on total connections. Must be >= 1.
	MaxActive int

	// MinActive is the number of warm connections the validator maintains.
	// Clamped to MaxActive.
	MinActive int

	// MaxWaitTime is how long Borrow waits for an idle connection before
	// timing out. 0 waits indefinitely.
	MaxWaitTime time.Duration

	// ValidationInterval is the period of the background hygiene sweep.
	// 0 disables the validator.
	ValidationInterval time.Duration

	// MaxIdleTime evicts connections unused for this long, down to
	// MinActive. 0 disables idle eviction.
	MaxIdleTime time.Duration

	// MaxLifeTime evicts connections older than this. 0 disables life
	// eviction.
	MaxLifeTime time.Duration

	// TestOnBorrow drops dead connections when they are borrowed.
	TestOnBorrow bool

	// TestOnReturn drops dead connections when they are returned.
	TestOnReturn bool

	// ResetConnections resets every connection implementing Resetter when it
	// is handed out from the idle queue. Freshly created connections are not
	// reset.
	ResetConnections bool

	// Logger receives the pool's suppressed-error and lifecycle events.
	Logger zerolog.Logger
}

func defaultOptions() Options {
	return Options{
		MaxActive:          defaultMaxActive,
		MaxWaitTime:        defaultMaxWaitTime,
		ValidationInterval: defaultValidationInterval,
		MaxIdleTime:        defaultMaxIdleTime,
		TestOnBorrow:       true,
		TestOnReturn:       true,
		Logger:             zerolog.Nop(),
	}
}

func (o *Options) validate() error {
	if o.MaxActive < 1 {
		return errors.Errorf("pool: MaxActive must be >= 1, got %d", o.MaxActive)
	}
	if o.MinActive < 0 {
		return errors.Errorf("pool: MinActive must be >= 0, got %d", o.MinActive)
	}
	if o.MinActive > o.MaxActive {
		o.MinActive = o.MaxActive
	}
	if o.MaxWaitTime < 0 {
		return errors.Errorf("pool: MaxWaitTime must be >= 0, got %v", o.MaxWaitTime)
	}
	if o.ValidationInterval < 0 {
		return errors.Errorf("pool: ValidationInterval must be >= 0, got %v", o.ValidationInterval)
	}
	if o.MaxIdleTime < 0 {
		return errors.Errorf("pool: MaxIdleTime must be >= 0, got %v", o.MaxIdleTime)
	}
	if o.MaxLifeTime < 0 {
		return errors.Errorf("pool: MaxLifeTime must be >= 0, got %v", o.MaxLifeTime)
	}
	return nil
}

// Option mutates Options at construction time.
type Option func(*Options)

// WithMaxActive sets the hard cap on total connections.
func WithMaxActive(n int) Option {
	return func(o *Options) { o.MaxActive = n }
}

// WithMinActive sets the warm minimum the validator maintains.
func WithMinActive(n int) Option {
	return func(o *Options) { o.MinActive = n }
}

// WithMaxWaitTime sets the borrow timeout. 0 waits indefinitely.
func WithMaxWaitTime(d time.Duration) Option {
	return func(o *Options) { o.MaxWaitTime = d }
}

// WithValidationInterval sets the validator period. 0 disables it.
func WithValidationInterval(d time.Duration) Option {
	return func(o *Options) { o.ValidationInterval = d }
}

// WithMaxIdleTime sets the idle eviction threshold. 0 disables it.
func WithMaxIdleTime(d time.Duration) Option {
	return func(o *Options) { o.MaxIdleTime = d }
}

// WithMaxLifeTime sets the age eviction threshold. 0 disables it.
func WithMaxLifeTime(d time.Duration) Option {
	return func(o *Options) { o.MaxLifeTime = d }
}

// WithTestOnBorrow controls dropping dead connections on borrow.
func WithTestOnBorrow(v bool) Option {
	return func(o *Options) { o.TestOnBorrow = v }
}

// WithTestOnReturn controls dropping dead connections on return.
func WithTestOnReturn(v bool) Option {
	return func(o *Options) { o.TestOnReturn = v }
}

// WithResetConnections controls resetting connections on borrow.
func WithResetConnections(v bool) Option {
	return func(o *Options) { o.ResetConnections = v }
}

// WithLogger attaches a structured logger to the pool.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
