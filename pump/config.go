package pump

import (
	"fmt"
	"log/slog"
	"time"

	"i4.energy/lab/pumpctl/transport"
)

// Encoding selects how command lines are encoded on the wire.
type Encoding int

const (
	// EncodingASCII sends commands as plain ASCII.
	EncodingASCII Encoding = iota
	// EncodingUTF16LE sends every character as two little-endian bytes, as
	// the vendor's own host software does. The pump ignores the NUL bytes.
	EncodingUTF16LE
)

// ParseEncoding accepts "ascii" or "utf-16le".
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "ascii":
		return EncodingASCII, nil
	case "utf-16le", "utf16le":
		return EncodingUTF16LE, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// Observer is notified after every exchange on a Bus.
type Observer interface {
	ObserveExchange(address int, verb string, elapsed time.Duration, err error)
}

// Config holds the settings of a Bus. Use NewConfigBuilder to create one.
type Config struct {
	dialer   transport.Dialer
	encoding Encoding
	logger   *slog.Logger
	observer Observer
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.encoding != EncodingASCII && c.encoding != EncodingUTF16LE {
		return fmt.Errorf("unknown encoding %d", c.encoding)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d transport.Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithEncoding(e Encoding) *ConfigBuilder {
	b.config.encoding = e
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithObserver(o Observer) *ConfigBuilder {
	b.config.observer = o
	return b
}

// Build validates the settings and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
