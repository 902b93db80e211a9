package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/internal/logging"
	ntvnats "github.com/smazurov/ntv2node/internal/nats"
	"github.com/smazurov/ntv2node/internal/rpc"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/spf13/cobra"
)

// remoteFlags locate a device served by a running daemon.
type remoteFlags struct {
	natsURL  string
	deviceID string
	timeout  time.Duration
	logLevel string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server of the daemon")
	cmd.PersistentFlags().StringVarP(&f.deviceID, "device", "d", "emu0", "Device identifier")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 5*time.Second, "Per-request timeout")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "Logging level (debug, info, warn, error)")
}

// remote is an open connection to one device.
type remote struct {
	nc      *ntvnats.Client
	rpc     *rpc.Client
	channel *autocirculate.Client
}

func (f *remoteFlags) dial() (*remote, error) {
	logging.Initialize(logging.Config{Level: f.logLevel, Format: "text"})

	nc := ntvnats.NewClient(f.natsURL, "cli", logging.GetLogger("nats"))
	if err := nc.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", f.natsURL, err)
	}
	client := rpc.NewClient(nc.Conn(), f.deviceID, f.timeout)
	return &remote{
		nc:      nc,
		rpc:     client,
		channel: autocirculate.New(client),
	}, nil
}

func (r *remote) Close() {
	r.nc.Close()
}

// parseChannel converts a one-based channel argument.
func parseChannel(arg string) (ntv2.Channel, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > ntv2.MaxChannels {
		return 0, fmt.Errorf("channel must be 1-%d, got %q", ntv2.MaxChannels, arg)
	}
	return ntv2.Channel(n - 1), nil
}

// parseUint32 accepts decimal, 0x hex and 0b binary.
func parseUint32(arg string) (uint32, error) {
	v, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", arg, err)
	}
	return uint32(v), nil
}
