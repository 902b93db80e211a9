package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/ntv2node/cmd"
	"github.com/smazurov/ntv2node/internal/api"
	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/internal/config"
	"github.com/smazurov/ntv2node/internal/device"
	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/led"
	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/smazurov/ntv2node/internal/metrics/collectors"
	"github.com/smazurov/ntv2node/internal/metrics/exporters"
	ntvnats "github.com/smazurov/ntv2node/internal/nats"
	"github.com/smazurov/ntv2node/internal/rpc"
	"github.com/smazurov/ntv2node/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config  string `help:"Path to configuration file" short:"c" default:"config.toml"`
	EnvFile string `help:"Path to a .env file" default:".env" toml:"env_file" env:"ENV_FILE"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Device settings
	DeviceID        string `help:"Device identifier on NATS subjects" default:"emu0" toml:"device.id" env:"DEVICE_ID"`
	DeviceModel     string `help:"Reported device model" default:"ntv2-emulator" toml:"device.model" env:"DEVICE_MODEL"`
	DeviceBoardID   string `help:"Board id register value" default:"0x10518400" toml:"device.board_id" env:"DEVICE_BOARD_ID"`
	DeviceFrames    int    `help:"Frame buffers in device memory" default:"16" toml:"device.frames" env:"DEVICE_FRAMES"`
	DeviceFrameSize int    `help:"Bytes per frame buffer" default:"4147200" toml:"device.frame_bytes" env:"DEVICE_FRAME_BYTES"`
	DeviceRegisters int    `help:"Registers in the register file" default:"1024" toml:"device.registers" env:"DEVICE_REGISTERS"`
	DeviceFrameRate string `help:"Frame clock in Hz" default:"29.97" toml:"device.frame_rate" env:"DEVICE_FRAME_RATE"`

	// NATS settings
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"true" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSHost     string `help:"Embedded NATS listen host" default:"127.0.0.1" toml:"nats.host" env:"NATS_HOST"`
	NATSPort     int    `help:"Embedded NATS listen port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NATSURL      string `help:"External NATS URL when not embedded" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	RPCTimeout   string `help:"Per-request device timeout" default:"5s" toml:"nats.rpc_timeout" env:"NATS_RPC_TIMEOUT"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool `help:"Publish channel metrics on /api/events" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Features
	FeaturesLED string `help:"Board LED that shows channel activity (empty disables)" default:"" toml:"features.led" env:"FEATURES_LED"`

	// Logging settings
	LoggingLevel         string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat        string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevice        string `help:"Device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingAutoCirculate string `help:"AutoCirculate client logging level" default:"info" toml:"logging.autocirculate" env:"LOGGING_AUTOCIRCULATE"`
	LoggingRPC           string `help:"RPC logging level" default:"info" toml:"logging.rpc" env:"LOGGING_RPC"`
	LoggingNATS          string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingAPI           string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingMetrics       string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("config").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"device":        opts.LoggingDevice,
				"autocirculate": opts.LoggingAutoCirculate,
				"rpc":           opts.LoggingRPC,
				"nats":          opts.LoggingNATS,
				"api":           opts.LoggingAPI,
				"http":          opts.LoggingAPI,
				"metrics":       opts.LoggingMetrics,
			},
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.String())

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		boardID, err := strconv.ParseUint(opts.DeviceBoardID, 0, 32)
		if err != nil {
			logger.Warn("Invalid board id, using default", "value", opts.DeviceBoardID, "error", err)
			boardID = uint64(device.DefaultConfig().BoardID)
		}
		frameRate, err := strconv.ParseFloat(opts.DeviceFrameRate, 64)
		if err != nil || frameRate <= 0 {
			logger.Warn("Invalid frame rate, using default", "value", opts.DeviceFrameRate)
			frameRate = device.DefaultConfig().FrameRate
		}
		rpcTimeout, err := time.ParseDuration(opts.RPCTimeout)
		if err != nil {
			rpcTimeout = 5 * time.Second
		}

		dev, err := device.New(device.Config{
			ID:              opts.DeviceID,
			Model:           opts.DeviceModel,
			BoardID:         uint32(boardID),
			NumFrameBuffers: opts.DeviceFrames,
			FrameBytes:      opts.DeviceFrameSize,
			NumRegisters:    opts.DeviceRegisters,
			FrameRate:       frameRate,
		}, eventBus)
		if err != nil {
			logger.Error("Failed to open device", "error", err)
			os.Exit(1)
		}
		channels := autocirculate.New(dev)

		presets, err := config.LoadRegisterPresets(opts.Config)
		if err != nil {
			logger.Warn("Failed to load register presets", "config", opts.Config, "error", err)
		}

		natsLogger := logging.GetLogger("nats")
		var natsServer *ntvnats.Server
		var natsClient *ntvnats.Client
		if opts.NATSEmbedded {
			natsServer = ntvnats.NewServer(ntvnats.ServerOptions{
				Host:   opts.NATSHost,
				Port:   opts.NATSPort,
				Name:   "ntv2node-" + opts.DeviceID,
				Logger: natsLogger,
			})
		}
		var rpcServer *rpc.Server

		var ledManager *led.Manager
		if opts.FeaturesLED != "" {
			ledManager = led.NewManager(led.New(logging.GetLogger("led")), eventBus, opts.FeaturesLED, logging.GetLogger("led"))
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Channels:     channels,
			EventBus:     eventBus,
			LED:          ledManager,
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		statusCollector := collectors.NewStatusCollector(opts.DeviceID, dev, eventBus)
		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		var loggingWatcher *config.Watcher[logging.Config]
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			go dev.RunClock(ctx, frameRate)

			if len(presets) > 0 {
				rejected, writeErr := channels.WriteRegisters(ctx, config.PresetRegInfos(presets))
				switch {
				case writeErr != nil:
					logger.Warn("Failed to apply register presets", "error", writeErr)
				case len(rejected) > 0:
					logger.Warn("Register presets rejected", "rejected", len(rejected), "total", len(presets))
				default:
					logger.Info("Register presets applied", "count", len(presets))
				}
			}

			// NATS must be up before the RPC server subscribes.
			natsURL := opts.NATSURL
			if natsServer != nil {
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start NATS server", "error", startErr)
					os.Exit(1)
				}
				natsURL = natsServer.ClientURL()
			}
			natsClient = ntvnats.NewClient(natsURL, opts.DeviceID, natsLogger)
			if connErr := natsClient.Connect(); connErr != nil {
				logger.Warn("NATS unavailable, device RPC disabled", "error", connErr)
			} else {
				natsClient.ForwardEvents(eventBus)
				rpcServer = rpc.NewServer(natsClient.Conn(), opts.DeviceID, dev, rpcTimeout)
				if startErr := rpcServer.Start(); startErr != nil {
					logger.Warn("Failed to start RPC server", "error", startErr)
					rpcServer = nil
				}
			}

			if startErr := statusCollector.Start(ctx); startErr != nil {
				logger.Warn("Failed to start status collector", "error", startErr)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if ledManager != nil {
				ledManager.Start()
			}

			if _, statErr := os.Stat(opts.Config); statErr == nil {
				w, watchErr := config.WatchLogging(opts.Config, logging.GetLogger("config"))
				if watchErr != nil {
					logger.Warn("Failed to watch config for logging changes", "error", watchErr)
				} else {
					loggingWatcher = w
				}
			}

			if sent, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("systemd notify failed", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if loggingWatcher != nil {
				_ = loggingWatcher.Stop()
			}
			if ledManager != nil {
				ledManager.Stop()
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			_ = statusCollector.Stop()
			if rpcServer != nil {
				rpcServer.Stop()
			}
			if natsClient != nil {
				natsClient.Close()
			}
			if natsServer != nil {
				natsServer.Stop()
			}

			cancel()
			if closeErr := dev.Close(); closeErr != nil {
				logger.Warn("Error closing device", "error", closeErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateACCmd())
	cli.Root().AddCommand(cmd.CreateRegsCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
