package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/logging"
	ntvnats "github.com/smazurov/ntv2node/internal/nats"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/spf13/cobra"
)

// loopOptions configure the play and capture loops.
type loopOptions struct {
	frames  int
	count   int
	preroll int32
	out     string
}

func createACPlayCmd(flags *remoteFlags) *cobra.Command {
	lo := loopOptions{frames: autocirculate.DefaultFrameCount, preroll: 3}
	cmd := &cobra.Command{
		Use:   "play <channel>",
		Short: "Play a generated test pattern with running timecode",
		Long: `Initializes a channel for playout, prerolls it, and transfers one frame per ` +
			`device frame period until --count frames were sent or the command is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				return playLoop(ctx, cmd, r.channel, ch, lo)
			})
		},
	}
	cmd.Flags().IntVar(&lo.frames, "frames", lo.frames, "Frames in the playout ring")
	cmd.Flags().IntVar(&lo.count, "count", 0, "Frames to send, 0 to run until interrupted")
	cmd.Flags().Int32Var(&lo.preroll, "preroll", lo.preroll, "Frames queued before the channel starts")
	return cmd
}

func createACCaptureCmd(flags *remoteFlags) *cobra.Command {
	lo := loopOptions{frames: autocirculate.DefaultFrameCount}
	cmd := &cobra.Command{
		Use:   "capture <channel>",
		Short: "Capture frames from a channel",
		Long: `Initializes a channel for capture and transfers frames as the device fills ` +
			`them until --count frames arrived or the command is interrupted. ` +
			`With --out the raw video is appended to a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				return captureLoop(ctx, cmd, r.channel, ch, lo)
			})
		},
	}
	cmd.Flags().IntVar(&lo.frames, "frames", lo.frames, "Frames in the capture ring")
	cmd.Flags().IntVar(&lo.count, "count", 0, "Frames to capture, 0 to run until interrupted")
	cmd.Flags().StringVarP(&lo.out, "out", "o", "", "File to append raw video to")
	return cmd
}

// framePeriod returns the duration of one frame at rate, 30Hz when unknown.
func framePeriod(rate float64) time.Duration {
	if rate <= 0 {
		rate = 30
	}
	return time.Duration(float64(time.Second) / rate)
}

func playLoop(ctx context.Context, cmd *cobra.Command, c *autocirculate.Client, ch ntv2.Channel, lo loopOptions) error {
	logger := logging.GetLogger("autocirculate")
	info, err := c.DeviceInfo(ctx)
	if err != nil {
		return err
	}
	opts := autocirculate.DefaultInitOptions()
	opts.FrameCount = lo.frames
	opts.Options = ntv2.OptionRP188
	if err := c.InitForOutput(ctx, ch, opts); err != nil {
		return err
	}
	defer func() {
		// The loop context may already be cancelled.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Stop(stopCtx, ch); err != nil {
			logger.Warn("Failed to stop channel", "channel", ch, "error", err)
		}
	}()
	if lo.preroll > 0 {
		if err := c.Preroll(ctx, ch, lo.preroll); err != nil {
			return err
		}
	}

	video := make([]byte, info.FrameBytes)
	xfer := ntv2.NewTransferWithBuffers(video, nil, nil, nil)
	fps := uint64(math.Round(info.FrameRate))
	if fps == 0 {
		fps = 30
	}
	ticker := time.NewTicker(framePeriod(info.FrameRate))
	defer ticker.Stop()

	started := false
	var sent uint64
	for lo.count == 0 || sent < uint64(lo.count) {
		for i := range video {
			video[i] = byte(sent + uint64(i))
		}
		secs := sent / fps
		xfer.RP188 = ntv2.NewRP188(uint32(secs/3600%24), uint32(secs/60%60), uint32(secs%60), uint32(sent%fps))

		err := c.Transfer(ctx, ch, xfer)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ntv2.ErrNoFrameAvailable):
			// Ring full; wait for the device to play a frame out.
		default:
			return err
		}

		if !started && (sent >= uint64(max(lo.preroll, 1)) || err != nil) {
			if err := c.Start(ctx, ch); err != nil {
				return err
			}
			started = true
		}

		select {
		case <-ctx.Done():
			return reportLoop(cmd, c, ch, "sent", sent)
		case <-ticker.C:
		}
	}
	return reportLoop(cmd, c, ch, "sent", sent)
}

func captureLoop(ctx context.Context, cmd *cobra.Command, c *autocirculate.Client, ch ntv2.Channel, lo loopOptions) error {
	logger := logging.GetLogger("autocirculate")
	info, err := c.DeviceInfo(ctx)
	if err != nil {
		return err
	}

	var out *os.File
	if lo.out != "" {
		if out, err = os.OpenFile(lo.out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			return fmt.Errorf("open %s: %w", lo.out, err)
		}
		defer out.Close()
	}

	opts := autocirculate.DefaultInitOptions()
	opts.FrameCount = lo.frames
	opts.Options = ntv2.OptionRP188
	if err := c.InitForInput(ctx, ch, opts); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Stop(stopCtx, ch); err != nil {
			logger.Warn("Failed to stop channel", "channel", ch, "error", err)
		}
	}()
	if err := c.Start(ctx, ch); err != nil {
		return err
	}

	video := make([]byte, info.FrameBytes)
	xfer := ntv2.NewTransferWithBuffers(video, nil, nil, nil)
	ticker := time.NewTicker(framePeriod(info.FrameRate) / 2)
	defer ticker.Stop()

	var got uint64
	for lo.count == 0 || got < uint64(lo.count) {
		err := c.Transfer(ctx, ch, xfer)
		switch {
		case err == nil:
			got++
			if out != nil {
				if _, err := out.Write(video); err != nil {
					return fmt.Errorf("write %s: %w", lo.out, err)
				}
			}
			if tc, ok := xfer.GetInputTimeCode(ntv2.TCIndexDefault); ok && tc.IsValid() {
				logger.Debug("Frame captured", "frame", xfer.TransferFrame(), "timecode", tc.String())
			}
			continue
		case errors.Is(err, ntv2.ErrNoFrameAvailable):
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return reportLoop(cmd, c, ch, "captured", got)
		case <-ticker.C:
		}
	}
	return reportLoop(cmd, c, ch, "captured", got)
}

func reportLoop(cmd *cobra.Command, c *autocirculate.Client, ch ntv2.Channel, verb string, n uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d frames\n", verb, n)
	return printStatus(ctx, cmd.OutOrStdout(), c, ch)
}

func createACWatchCmd(flags *remoteFlags) *cobra.Command {
	var transfers bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print channel state changes and drops published by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: flags.logLevel, Format: "text"})
			bus := events.New()
			bridge := ntvnats.NewBridge(flags.natsURL, bus, logging.GetLogger("nats"))
			if err := bridge.Start(); err != nil {
				return fmt.Errorf("connect to %s: %w", flags.natsURL, err)
			}
			defer bridge.Stop()

			out := cmd.OutOrStdout()
			lines := make(chan string, 64)
			emit := func(line string) {
				select {
				case lines <- line:
				default:
				}
			}
			defer bus.Subscribe(func(e events.ChannelStateChangedEvent) {
				emit(fmt.Sprintf("%s %s %s: %s -> %s (%d-%d)", e.Timestamp, e.DeviceID, e.Crosspoint, e.From, e.To, e.StartFrame, e.EndFrame))
			})()
			defer bus.Subscribe(func(e events.FramesDroppedEvent) {
				emit(fmt.Sprintf("%s %s %s: %s, %d dropped (%d total)", e.Timestamp, e.DeviceID, e.Crosspoint, e.Reason, e.Count, e.Total))
			})()
			if transfers {
				defer bus.Subscribe(func(e events.TransferCompletedEvent) {
					emit(fmt.Sprintf("%s %s %s: frame %d level %d processed %d", e.Timestamp, e.DeviceID, e.Crosspoint, e.Frame, e.BufferLevel, e.FramesProcessed))
				})()
			}

			ctx, stop := signalContext(cmd)
			defer stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-lines:
					fmt.Fprintln(out, line)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&transfers, "transfers", false, "Also print every transfer")
	return cmd
}
