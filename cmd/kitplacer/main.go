// KitPlacer places pre-designed reagent kits onto 24, 48 and 96-well
// destination plates and applies them to the active experiment.
//
// Build:
//
//	go build -o kitplacer ./cmd/kitplacer
//
// Usage:
//
//	kitplacer serve --addr 127.0.0.1:5000 --state-file ~/.kitplacer/experiment.json
//	kitplacer plan --kit kit.xlsx --plate 96 [--server http://127.0.0.1:5000]
//	kitplacer apply --kit kit.xlsx --plate 96 --block top_left --block bottom_right
//	kitplacer export --kit kit.xlsx --plate 96 --block rows_A-B --out platemap.pdf
//	kitplacer status [--local]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = klog.NewContext(ctx, klog.Background().WithName("kitplacer"))

	command := newRootCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		klog.Flush()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kitplacer",
		Short: "Place reagent kits onto well plates",
		Long: `KitPlacer reads kit workbooks, resolves how a kit fits on a 24, 48 or
96-well destination plate, and applies the chosen placement to the active
experiment, either through the HTTP API or into a local snapshot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().AddFlagSet(pflag.CommandLine)

	cmd.AddCommand(
		newServeCommand(),
		newPlanCommand(),
		newApplyCommand(),
		newExportCommand(),
		newStatusCommand(),
	)
	return cmd
}
