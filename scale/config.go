package scale

import (
	"log/slog"
	"time"

	"i4.energy/lab/pumpctl/transport"
)

// Config holds the settings of a Scale. Use NewConfigBuilder to create one.
type Config struct {
	dialer        transport.Dialer
	logger        *slog.Logger
	promptTimeout time.Duration
	pollInterval  time.Duration
	settleDelay   time.Duration
	zeroTolerance float64
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.promptTimeout == 0 {
		c.promptTimeout = 5 * time.Second
	}
	if c.pollInterval == 0 {
		c.pollInterval = 10 * time.Millisecond
	}
	if c.settleDelay == 0 {
		c.settleDelay = time.Second
	}
	if c.zeroTolerance == 0 {
		c.zeroTolerance = 0.01
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

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithPromptTimeout bounds each wait for a banner or menu prompt.
func (b *ConfigBuilder) WithPromptTimeout(d time.Duration) *ConfigBuilder {
	b.config.promptTimeout = d
	return b
}

// WithPollInterval sets the pause between empty non-blocking reads.
func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

// WithSettleDelay sets how long Tare waits before its check reading.
func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.settleDelay = d
	return b
}

func (b *ConfigBuilder) WithZeroTolerance(v float64) *ConfigBuilder {
	b.config.zeroTolerance = v
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
