package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/lab/pumpctl/monitor"
	"i4.energy/lab/pumpctl/pump"
	"i4.energy/lab/pumpctl/scale"
	"i4.energy/lab/pumpctl/telemetry"
	"i4.energy/lab/pumpctl/transport"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port of the pump bus")
	flag.Int("baud-rate", 9600, "Baud rate of the pump bus")
	flag.Int("stop-bits", 2, "Stop bits of the pump bus (1 or 2)")
	flag.Duration("read-timeout", 500*time.Millisecond, "Wait for each reply byte")
	flag.String("encoding", "ascii", "Command text encoding (ascii, utf-16le)")
	flag.String("pumps", "0", "Comma separated pump addresses")
	flag.String("scale-port", "", "Serial port of the load cell (empty disables the scale)")
	flag.Int("scale-baud-rate", 115200, "Baud rate of the load cell")
	flag.Duration("scale-prompt-timeout", 5*time.Second, "Wait for each scale menu prompt")
	flag.Duration("poll-interval", time.Second, "Telemetry sampling period (0 disables polling)")
	flag.String("redis-addr", "", "Redis address for telemetry (empty disables Redis)")
	flag.String("redis-password", "", "Redis password")
	flag.Int("redis-db", 0, "Redis database")
	flag.String("redis-channel", "pumpctl", "Redis channel for telemetry")
	flag.Int64("redis-history", 1000, "Snapshots kept per device in Redis")
	flag.String("mqtt-broker", "", "MQTT broker for telemetry (empty disables MQTT)")
	flag.String("mqtt-client-id", "pumpctl", "MQTT client ID")
	flag.String("mqtt-topic", "pumpctl", "MQTT topic prefix")
	flag.String("mqtt-username", "", "MQTT username")
	flag.String("mqtt-password", "", "MQTT password")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(config, logger); err != nil {
		logger.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(config *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := monitor.NewRegistry()
	metrics, err := monitor.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	encoding, err := pump.ParseEncoding(config.Encoding)
	if err != nil {
		return err
	}
	busConfig, err := pump.NewConfigBuilder().
		WithDialer(transport.SerialDialer{
			PortName:    config.SerialPort,
			BaudRate:    config.BaudRate,
			StopBits:    config.StopBits,
			ReadTimeout: config.ReadTimeout,
		}).
		WithEncoding(encoding).
		WithLogger(logger.With("component", "bus")).
		WithObserver(metrics).
		Build()
	if err != nil {
		return fmt.Errorf("pump bus config: %w", err)
	}

	bus, err := pump.NewBus(ctx, busConfig)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Closing pump bus")
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close pump bus", "error", err)
		}
	}()

	pumps := make(map[int]*pump.Pump, len(config.Pumps))
	poller := &telemetry.Poller{
		Metrics:  metrics,
		Interval: config.PollInterval,
		Logger:   logger.With("component", "poller"),
	}
	for _, addr := range config.Pumps {
		p, err := pump.New(ctx, bus, addr)
		if err != nil {
			return err
		}
		logger.Info("Pump attached", "pump", p, "status", p.Status())
		pumps[addr] = p
		poller.Pumps = append(poller.Pumps, p)
	}

	server := &Server{
		Logger:  logger.With("component", "server"),
		Pumps:   pumps,
		Metrics: monitor.Handler(registry),
	}

	if config.ScalePort != "" {
		scaleConfig, err := scale.NewConfigBuilder().
			WithDialer(transport.SerialDialer{
				PortName: config.ScalePort,
				BaudRate: config.ScaleBaudRate,
				StopBits: 1,
			}).
			WithLogger(logger.With("component", "scale")).
			WithPromptTimeout(config.ScalePromptTimeout).
			Build()
		if err != nil {
			return fmt.Errorf("scale config: %w", err)
		}
		sc, err := scale.New(ctx, scaleConfig)
		if err != nil {
			return err
		}
		defer sc.Close()
		server.Scale = sc
		poller.Scale = sc
	}

	var publishers telemetry.Fanout
	if config.RedisAddr != "" {
		client, err := telemetry.DialRedis(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return err
		}
		rp := telemetry.NewRedisPublisher(client, config.RedisChannel, config.RedisHistory, logger.With("component", "redis"))
		defer rp.Close()
		publishers = append(publishers, rp)
	}
	if config.MQTTBroker != "" {
		client, err := telemetry.DialMQTT(ctx, telemetry.MQTTConfig{
			Broker:   config.MQTTBroker,
			ClientID: config.MQTTClientID,
			Username: config.MQTTUsername,
			Password: config.MQTTPassword,
		}, logger.With("component", "mqtt"))
		if err != nil {
			return err
		}
		mp := telemetry.NewMQTTPublisher(client, config.MQTTTopic, 0, false)
		defer mp.Close()
		publishers = append(publishers, mp)
	}
	if len(publishers) > 0 {
		poller.Publisher = publishers
	}

	if config.PollInterval > 0 {
		go poller.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}
