package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/smazurov/ntv2node/internal/config"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/spf13/cobra"
)

// CreateRegsCmd creates the regs command for remote register access.
func CreateRegsCmd() *cobra.Command {
	flags := &remoteFlags{}
	cmd := &cobra.Command{
		Use:          "regs",
		Short:        "Read and write registers on a remote device",
		SilenceUsage: true,
	}
	flags.register(cmd)
	cmd.AddCommand(createRegsGetCmd(flags), createRegsSetCmd(flags), createRegsApplyCmd(flags))
	return cmd
}

func createRegsGetCmd(flags *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <register>...",
		Short: "Read registers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regs := make([]uint32, len(args))
			for i, arg := range args {
				n, err := parseUint32(arg)
				if err != nil {
					return err
				}
				regs[i] = n
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				values, err := r.channel.ReadRegisters(ctx, regs)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, num := range regs {
					if v, ok := values[num]; ok {
						fmt.Fprintf(out, "%5d 0x%08X %d\n", num, v, v)
					} else {
						fmt.Fprintf(out, "%5d unreadable\n", num)
					}
				}
				return nil
			})
		},
	}
}

// parseWrite parses NUM=VALUE[/MASK[:SHIFT]].
func parseWrite(arg string) (ntv2.RegInfo, error) {
	num, rest, ok := strings.Cut(arg, "=")
	if !ok {
		return ntv2.RegInfo{}, fmt.Errorf("write %q is not NUM=VALUE[/MASK[:SHIFT]]", arg)
	}
	ri := ntv2.RegInfo{Mask: 0xFFFFFFFF}
	var err error
	if ri.Num, err = parseUint32(num); err != nil {
		return ri, err
	}
	value, maskShift, hasMask := strings.Cut(rest, "/")
	if ri.Value, err = parseUint32(value); err != nil {
		return ri, err
	}
	if !hasMask {
		return ri, nil
	}
	mask, shift, hasShift := strings.Cut(maskShift, ":")
	if ri.Mask, err = parseUint32(mask); err != nil {
		return ri, err
	}
	if hasShift {
		if ri.Shift, err = parseUint32(shift); err != nil {
			return ri, err
		}
		if ri.Shift > 31 {
			return ri, fmt.Errorf("shift %d exceeds 31", ri.Shift)
		}
	}
	return ri, nil
}

func createRegsSetCmd(flags *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set NUM=VALUE[/MASK[:SHIFT]]...",
		Short: "Write registers",
		Long: `Writes registers in one batch. VALUE is shifted left by SHIFT and only the ` +
			`bits in MASK change. Numbers accept 0x and 0b prefixes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]ntv2.RegInfo, len(args))
			for i, arg := range args {
				ri, err := parseWrite(arg)
				if err != nil {
					return err
				}
				infos[i] = ri
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				return writeRegisters(ctx, cmd, r, infos)
			})
		},
	}
}

func createRegsApplyCmd(flags *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <presets.toml>",
		Short: "Write the [[registers]] presets from a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := config.LoadRegisterPresets(args[0])
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				return fmt.Errorf("no register presets in %s", args[0])
			}
			return withRemote(cmd, flags, func(ctx context.Context, r *remote) error {
				return writeRegisters(ctx, cmd, r, config.PresetRegInfos(presets))
			})
		},
	}
}

func writeRegisters(ctx context.Context, cmd *cobra.Command, r *remote, infos []ntv2.RegInfo) error {
	rejected, err := r.channel.WriteRegisters(ctx, infos)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %d of %d registers\n", len(infos)-len(rejected), len(infos))
	for _, ri := range rejected {
		fmt.Fprintf(out, "rejected %d=0x%X/0x%X:%d\n", ri.Num, ri.Value, ri.Mask, ri.Shift)
	}
	if len(rejected) > 0 {
		nums := make([]uint32, len(rejected))
		for i, ri := range rejected {
			nums[i] = ri.Num
		}
		slices.Sort(nums)
		return fmt.Errorf("%d register writes rejected: %v", len(rejected), nums)
	}
	return nil
}
