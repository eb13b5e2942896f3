package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	// SerialPort is the path to the pump bus serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate of the pump bus (e.g. 9600)
	BaudRate int `yaml:"baud_rate"`
	// StopBits is 1 or 2
	StopBits int `yaml:"stop_bits"`
	// ReadTimeout bounds the wait for each reply byte
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// Encoding of the command text ("ascii" or "utf-16le")
	Encoding string `yaml:"encoding"`
	// Pumps lists the addresses of the pumps on the bus
	Pumps []int `yaml:"pumps"`

	// ScalePort is the load cell serial port; empty disables the scale
	ScalePort string `yaml:"scale_port"`
	// ScaleBaudRate is the baud rate of the load cell (e.g. 115200)
	ScaleBaudRate int `yaml:"scale_baud_rate"`
	// ScalePromptTimeout bounds each wait for a menu prompt
	ScalePromptTimeout time.Duration `yaml:"scale_prompt_timeout"`

	// PollInterval is the telemetry sampling period; zero disables polling
	PollInterval time.Duration `yaml:"poll_interval"`

	// RedisAddr enables the Redis publisher (e.g. "localhost:6379")
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
	RedisHistory  int64  `yaml:"redis_history"`

	// MQTTBroker enables the MQTT publisher (e.g. "tcp://localhost:1883")
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.LogLevel = "info"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 9600
		c.StopBits = 2
		c.ReadTimeout = 500 * time.Millisecond
		c.Encoding = "ascii"
		c.Pumps = []int{0}
		c.ScaleBaudRate = 115200
		c.ScalePromptTimeout = 5 * time.Second
		c.PollInterval = time.Second
		c.RedisChannel = "pumpctl"
		c.RedisHistory = 1000
		c.MQTTClientID = "pumpctl"
		c.MQTTTopic = "pumpctl"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for name, set := range c.setters() {
			if v := os.Getenv(strings.ToUpper(strings.ReplaceAll(name, "-", "_"))); v != "" {
				if err := set(v); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		setters := c.setters()
		var err error
		fSet.Visit(func(f *flag.Flag) {
			if set, ok := setters[f.Name]; ok && err == nil {
				err = set(f.Value.String())
			}
		})
		return err
	}
}

// setters maps flag names to the field they set. Environment variables use
// the upper-case, underscore form of the same name.
func (c *Config) setters() map[string]func(string) error {
	return map[string]func(string) error{
		"bind-address":         setString(&c.BindAddress),
		"log-level":            setString(&c.LogLevel),
		"serial-port":          setString(&c.SerialPort),
		"baud-rate":            setInt(&c.BaudRate),
		"stop-bits":            setInt(&c.StopBits),
		"read-timeout":         setDuration(&c.ReadTimeout),
		"encoding":             setString(&c.Encoding),
		"pumps":                setAddresses(&c.Pumps),
		"scale-port":           setString(&c.ScalePort),
		"scale-baud-rate":      setInt(&c.ScaleBaudRate),
		"scale-prompt-timeout": setDuration(&c.ScalePromptTimeout),
		"poll-interval":        setDuration(&c.PollInterval),
		"redis-addr":           setString(&c.RedisAddr),
		"redis-password":       setString(&c.RedisPassword),
		"redis-db":             setInt(&c.RedisDB),
		"redis-channel":        setString(&c.RedisChannel),
		"redis-history":        setInt64(&c.RedisHistory),
		"mqtt-broker":          setString(&c.MQTTBroker),
		"mqtt-client-id":       setString(&c.MQTTClientID),
		"mqtt-topic":           setString(&c.MQTTTopic),
		"mqtt-username":        setString(&c.MQTTUsername),
		"mqtt-password":        setString(&c.MQTTPassword),
	}
}

func setString(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func setInt(p *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", v, err)
		}
		*p = i
		return nil
	}
}

func setInt64(p *int64) func(string) error {
	return func(v string) error {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", v, err)
		}
		*p = i
		return nil
	}
}

func setDuration(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func setAddresses(p *[]int) func(string) error {
	return func(v string) error {
		addrs, err := parseAddresses(v)
		if err != nil {
			return err
		}
		*p = addrs
		return nil
	}
}

// parseAddresses parses a comma separated list of pump addresses.
func parseAddresses(s string) ([]int, error) {
	var addrs []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		a, err := strconv.Atoi(field)
		if err != nil || a < 0 {
			return nil, fmt.Errorf("invalid pump address %q", field)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
