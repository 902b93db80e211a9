package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/spf13/cobra"
)

// CreateACCmd creates the ac command, which drives AutoCirculate on a device
// served by a running daemon.
func CreateACCmd() *cobra.Command {
	flags := &remoteFlags{}
	cmd := &cobra.Command{
		Use:   "ac",
		Short: "Drive AutoCirculate on a remote device",
		Long: `Sends AutoCirculate commands to a device served by "ntv2node serve" over NATS. ` +
			`Channels are numbered from 1.`,
		SilenceUsage: true,
	}
	flags.register(cmd)

	cmd.AddCommand(
		createACInitCmd(flags),
		simpleACCmd(flags, "start", "Start a channel", func(ctx context.Context, c *autocirculate.Client, ch ntv2.Channel) error {
			return c.Start(ctx, ch)
		}),
		simpleACCmd(flags, "stop", "Stop a channel, aborting it if it does not stop", func(ctx context.Context, c *autocirculate.Client, ch ntv2.Channel) error {
			return c.Stop(ctx, ch)
		}),
		simpleACCmd(flags, "abort", "Abort a channel without draining", func(ctx context.Context, c *autocirculate.Client, ch ntv2.Channel) error {
			return c.Abort(ctx, ch)
		}),
		createACStartAtCmd(flags),
		createACPauseCmd(flags),
		createACResumeCmd(flags, "resume", "Resume a paused channel"),
		createACResumeCmd(flags, "flush", "Discard the frames queued on a channel"),
		createACFrameArgCmd(flags, "preroll", "Add frames to the playout preroll", func(ctx context.Context, c *autocirculate.Client, ch ntv2.Channel, n int32) error {
			return c.Preroll(ctx, ch, n)
		}),
		createACFrameArgCmd(flags, "active-frame", "Put a frame on air or into capture", func(ctx context.Context, c *autocirculate.Client, ch ntv2.Channel, n int32) error {
			return c.SetActiveFrame(ctx, ch, n)
		}),
		createACStatusCmd(flags),
		createACFrameStampCmd(flags),
		createACPlayCmd(flags),
		createACCaptureCmd(flags),
		createACWatchCmd(flags),
	)
	return cmd
}

func createACInitCmd(flags *remoteFlags) *cobra.Command {
	var (
		input   bool
		opts    = autocirculate.DefaultInitOptions()
		audio   int
		options []string
	)
	cmd := &cobra.Command{
		Use:   "init <channel>",
		Short: "Initialize a channel for capture or playout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			if audio > 0 {
				opts.AudioSystem = ntv2.AudioSystem(audio - 1)
			}
			if opts.Options, err = ntv2.ParseOptionFlags(options); err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if input {
					err = r.channel.InitForInput(ctx, ch, opts)
				} else {
					err = r.channel.InitForOutput(ctx, ch, opts)
				}
				if err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
	cmd.Flags().BoolVar(&input, "input", false, "Initialize for capture instead of playout")
	cmd.Flags().IntVar(&opts.FrameCount, "frames", opts.FrameCount, "Frames to allocate when no range is given")
	cmd.Flags().Int32Var(&opts.StartFrame, "start-frame", 0, "First frame of an explicit range")
	cmd.Flags().Int32Var(&opts.EndFrame, "end-frame", 0, "Last frame of an explicit range")
	cmd.Flags().IntVar(&opts.NumChannels, "channels", opts.NumChannels, "Ganged frame stores")
	cmd.Flags().IntVar(&audio, "audio", 0, "Audio system 1-8, 0 for none")
	cmd.Flags().StringSliceVar(&options, "option", nil, "AutoCirculate option ("+strings.Join(ntv2.OptionFlags(^uint32(0)).Names(), ", ")+")")
	return cmd
}

func simpleACCmd(flags *remoteFlags, use, short string, run func(context.Context, *autocirculate.Client, ntv2.Channel) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if err := run(ctx, r.channel, ch); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
}

func createACStartAtCmd(flags *remoteFlags) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "start-at <channel> [host-time]",
		Short: "Start a channel when the device host clock reaches a time",
		Long: `Starts a channel at an absolute device host time in 100ns units, ` +
			`or --in a delay from the device's current time.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				var at int64
				if len(args) == 2 {
					if at, err = strconv.ParseInt(args[1], 0, 64); err != nil {
						return fmt.Errorf("invalid host time %q: %w", args[1], err)
					}
				} else {
					st, err := r.channel.GetStatus(ctx, ch)
					if err != nil {
						return err
					}
					at = int64(st.RDTSCCurrentTime) + int64(delay/100)
				}
				if err := r.channel.StartAt(ctx, ch, at); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
	cmd.Flags().DurationVar(&delay, "in", time.Second, "Delay from the device's current time")
	return cmd
}

func createACPauseCmd(flags *remoteFlags) *cobra.Command {
	var atFrame int32
	cmd := &cobra.Command{
		Use:   "pause <channel>",
		Short: "Pause a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if err := r.channel.Pause(ctx, ch, atFrame); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
	cmd.Flags().Int32Var(&atFrame, "at-frame", ntv2.NoPauseFrame, "Pause once this frame is reached (-1 pauses at once)")
	return cmd
}

func createACResumeCmd(flags *remoteFlags, use, short string) *cobra.Command {
	var clearDrops bool
	cmd := &cobra.Command{
		Use:   use + " <channel>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if use == "flush" {
					err = r.channel.Flush(ctx, ch, clearDrops)
				} else {
					err = r.channel.Resume(ctx, ch, clearDrops)
				}
				if err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
	cmd.Flags().BoolVar(&clearDrops, "clear-drops", false, "Reset the dropped frame counter")
	return cmd
}

func createACFrameArgCmd(flags *remoteFlags, use, short string, run func(context.Context, *autocirculate.Client, ntv2.Channel, int32) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel> <frames>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid frame value %q: %w", args[1], err)
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if err := run(ctx, r.channel, ch, int32(n)); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), r.channel, ch)
			})
		},
	}
}

func createACStatusCmd(flags *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [channel]",
		Short: "Show the status of one or every channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var only []ntv2.Channel
			if len(args) == 1 {
				ch, err := parseChannel(args[0])
				if err != nil {
					return err
				}
				only = append(only, ch)
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				if len(only) == 0 {
					info, err := r.channel.DeviceInfo(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s, %d frames of %d bytes at %.2f Hz\n",
						info.ID, info.Model, info.NumFrameBuffers, info.FrameBytes, info.FrameRate)
					for ch := range ntv2.Channel(info.NumChannels) {
						only = append(only, ch)
					}
				}
				for _, ch := range only {
					if err := printStatus(ctx, cmd.OutOrStdout(), r.channel, ch); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func createACFrameStampCmd(flags *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "framestamp <channel> <frame>",
		Short: "Show timing and timecode of one frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			frame, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid frame %q: %w", args[1], err)
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				fs, err := r.channel.GetFrameStamp(ctx, ch, int32(frame))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "frame %d: time %d, audio clock %d\n", fs.Frame, fs.FrameTime, fs.AudioClockTimeStamp)
				fmt.Fprintf(out, "current frame %d (reps %d, field %d) at %d\n",
					fs.CurrentFrame, fs.CurrentReps, fs.CurrentFieldCount, fs.CurrentFrameTime)
				if fs.CurrentRP188.IsValid() {
					fmt.Fprintf(out, "current timecode %s\n", fs.CurrentRP188)
				}
				if tcs, ok := fs.GetInputTimeCodes(); ok {
					for i, tc := range tcs {
						if tc.IsValid() {
							fmt.Fprintf(out, "  %-12s %s\n", ntv2.TCIndex(i), tc)
						}
					}
				}
				return nil
			})
		},
	}
}

// withRemote dials the device, runs fn with a context cancelled on SIGINT or
// SIGTERM, and closes the connection.
func withRemote(cmd *cobra.Command, flags *remoteFlags, fn func(context.Context, *remote) error) error {
	r, err := flags.dial()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	return fn(ctx, r)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printStatus(ctx context.Context, w io.Writer, c *autocirculate.Client, ch ntv2.Channel) error {
	st, err := c.GetStatus(ctx, ch)
	if err != nil {
		return err
	}
	if st.IsStopped() {
		fmt.Fprintf(w, "%-4s %s\n", st.Crosspoint, st.State)
		return nil
	}
	fmt.Fprintf(w, "%-4s %-14s frames %d-%d active %d level %d processed %d dropped %d",
		st.Crosspoint, st.State, st.StartFrame, st.EndFrame, st.ActiveFrame,
		st.BufferLevel, st.FramesProcessed, st.FramesDropped)
	if st.AudioSystem.IsValid() {
		fmt.Fprintf(w, " audio %d", int(st.AudioSystem)+1)
	}
	if names := st.OptionFlags.Names(); len(names) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(names, ","))
	}
	fmt.Fprintln(w)
	return nil
}
