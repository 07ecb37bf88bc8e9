package ports

import "time"

// OnBufferFull values.
const (
	BufferBlock = "block"
	BufferDrop  = "drop"
)

type Policy struct {
	BufferSize   int    `yaml:"buffer_size"`
	OnBufferFull string `yaml:"on_buffer_full"`

	Delivery  RetryPolicy     `yaml:"delivery"`
	Reconnect RetryPolicy     `yaml:"reconnect"`
	KeepAlive KeepAlivePolicy `yaml:"keepalive"`

	PollFailureThreshold int           `yaml:"poll_failure_threshold"`
	StopTimeout          time.Duration `yaml:"stop_timeout"`
}

// RetryPolicy is an exponential backoff budget. MaxRetries counts retries after
// the first attempt.
type RetryPolicy struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

type KeepAlivePolicy struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxMissed int           `yaml:"max_missed"`
}
