package bwire

import (
	"time"

	"github.com/advdv/bwire/wire"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

// Config holds the limits and timeouts of a server. It is read from BW_ prefixed environment variables by
// [ParseConfig] and is fixed once the server started.
type Config struct {
	MaxHeaderBytes    int   `env:"MAX_HEADER_BYTES" envDefault:"32768"`
	MaxHeaderCount    int   `env:"MAX_HEADER_COUNT" envDefault:"100"`
	MaxTargetBytes    int   `env:"MAX_TARGET_BYTES" envDefault:"8192"`
	MaxBodyBytes      int64 `env:"MAX_BODY_BYTES" envDefault:"10485760"`
	MaxChunkBytes     int64 `env:"MAX_CHUNK_BYTES" envDefault:"1048576"`
	MaxMultipartParts int   `env:"MAX_MULTIPART_PARTS" envDefault:"1000"`
	// MaxDrainBytes is the largest unread fixed length body that is skipped to keep the connection open.
	MaxDrainBytes int64 `env:"MAX_DRAIN_BYTES" envDefault:"262144"`
	// ExtensionMethods admits method tokens beyond the standard ones.
	ExtensionMethods []string `env:"EXTENSION_METHODS"`

	ReadBufferBytes int `env:"READ_BUFFER_BYTES" envDefault:"4096"`
	// ResponseBufferLimit caps the buffered response body. -1 disables the cap.
	ResponseBufferLimit int `env:"RESPONSE_BUFFER_LIMIT" envDefault:"-1"`

	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownGrace     time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	KeepAlive        bool `env:"KEEP_ALIVE" envDefault:"true"`
	MaxPipelineDepth int  `env:"MAX_PIPELINE_DEPTH" envDefault:"16"`
}

// ParseConfig reads the config from the process environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "BW_"}); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config")
	}
	return cfg, cfg.Validate()
}

// DefaultConfig returns the config with every default applied, ignoring the environment.
func DefaultConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic("bwire: invalid config defaults: " + err.Error())
	}
	return cfg
}

// Validate rejects configs the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.ReadBufferBytes < 64:
		return errors.Newf("read buffer of %d bytes is too small", c.ReadBufferBytes)
	case c.MaxHeaderBytes <= 0, c.MaxHeaderCount <= 0, c.MaxTargetBytes <= 0:
		return errors.New("header limits must be positive")
	case c.MaxBodyBytes < 0, c.MaxChunkBytes <= 0:
		return errors.New("body limits must not be negative")
	case c.MaxPipelineDepth < 1:
		return errors.Newf("pipeline depth must be at least 1, got %d", c.MaxPipelineDepth)
	}
	return nil
}

// Limits translates the config into the limits of the wire parser.
func (c Config) Limits() wire.Limits {
	l := wire.DefaultLimits()
	l.MaxHeaderBytes = c.MaxHeaderBytes
	l.MaxHeaderCount = c.MaxHeaderCount
	l.MaxTargetBytes = c.MaxTargetBytes
	l.MaxBodyBytes = c.MaxBodyBytes
	l.MaxChunkBytes = c.MaxChunkBytes
	l.MaxMultipartParts = c.MaxMultipartParts
	l.ExtensionMethods = c.ExtensionMethods
	return l
}

// maxBufferBytes bounds how far a connection's receive buffer may grow.
func (c Config) maxBufferBytes() int {
	return c.MaxTargetBytes + c.MaxHeaderBytes + 2*c.ReadBufferBytes + wire.DefaultLimits().MaxChunkLineBytes
}
