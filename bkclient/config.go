package bkclient

import "time"

// Config is the typed, flag-parseable configuration surface the spec
// places out of scope beyond "a typed struct": read_timeout_seconds,
// tcp_no_delay, timeout_task_interval_ms, plus a dial timeout and the
// ordered dispatcher's live-queue bound. Struct tags follow the
// teacher's flowctl LogConfig idiom (long/env/default), so this struct
// embeds directly into a go-flags parser in cmd/bkpeer.
type Config struct {
	ReadTimeoutSeconds    int  `long:"read-timeout-seconds" env:"READ_TIMEOUT_SECONDS" default:"10" description:"seconds of silence on the connection after which expired requests are swept at once"`
	TimeoutTaskIntervalMs int  `long:"timeout-task-interval-ms" env:"TIMEOUT_TASK_INTERVAL_MS" default:"1000" description:"period, in milliseconds, of the completion-table timeout sweep"`
	RequestTimeoutSeconds int  `long:"request-timeout-seconds" env:"REQUEST_TIMEOUT_SECONDS" default:"5" description:"per-request deadline after which a pending op is failed with RequestTimeout"`
	TCPNoDelay            bool `long:"tcp-no-delay" env:"TCP_NO_DELAY" description:"disable Nagle's algorithm on the underlying TCP connection"`
	TCPKeepAliveSeconds   int  `long:"tcp-keep-alive-seconds" env:"TCP_KEEP_ALIVE_SECONDS" default:"30" description:"TCP keep-alive probe interval"`
	DialTimeoutSeconds    int  `long:"dial-timeout-seconds" env:"DIAL_TIMEOUT_SECONDS" default:"10" description:"timeout for establishing the underlying transport"`
	MaxDispatchQueues     int  `long:"max-dispatch-queues" env:"MAX_DISPATCH_QUEUES" default:"4096" description:"bound on live per-ledger ordered-callback queues"`
}

// ReadTimeout is Config.ReadTimeoutSeconds as a time.Duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// RequestTimeout is Config.RequestTimeoutSeconds as a time.Duration.
// Per the Open Question in spec §9, the deadline is derived in a single
// consistent unit and is not the 1000x-scaled value the source's
// constructor produced.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TimeoutTaskInterval is Config.TimeoutTaskIntervalMs as a time.Duration.
func (c Config) TimeoutTaskInterval() time.Duration {
	return time.Duration(c.TimeoutTaskIntervalMs) * time.Millisecond
}

// TCPKeepAlive is Config.TCPKeepAliveSeconds as a time.Duration.
func (c Config) TCPKeepAlive() time.Duration {
	return time.Duration(c.TCPKeepAliveSeconds) * time.Second
}

// DialTimeout is Config.DialTimeoutSeconds as a time.Duration.
func (c Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// DefaultConfig returns a Config with the same defaults go-flags would
// apply, for callers constructing a Client directly rather than via a
// CLI parser.
func DefaultConfig() Config {
	return Config{
		ReadTimeoutSeconds:    10,
		TimeoutTaskIntervalMs: 1000,
		RequestTimeoutSeconds: 5,
		TCPKeepAliveSeconds:   30,
		DialTimeoutSeconds:    10,
		MaxDispatchQueues:     4096,
	}
}
