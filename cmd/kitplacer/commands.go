package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/piwi3910/KitPlacer/internal/client"
	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/experiment"
	"github.com/piwi3910/KitPlacer/internal/export"
	"github.com/piwi3910/KitPlacer/internal/importer"
	"github.com/piwi3910/KitPlacer/internal/metrics"
	"github.com/piwi3910/KitPlacer/internal/model"
	"github.com/piwi3910/KitPlacer/internal/project"
	"github.com/piwi3910/KitPlacer/internal/server"
)

func newServeCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kit placement HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Complete()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	opts.AddConfigFlags(cmd.Flags())
	opts.AddServeFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg model.AppConfig) error {
	logger := klog.FromContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver(reg)
	if err != nil {
		return err
	}

	exp := model.NewExperiment()
	var persist func(model.Experiment) error
	if cfg.StateFile != "" {
		if exp, err = project.LoadSnapshot(cfg.StateFile); err != nil {
			return err
		}
		path := cfg.StateFile
		persist = func(e model.Experiment) error {
			return project.SaveSnapshot(path, e)
		}
		logger.Info("Loaded experiment snapshot", "path", path, "wells", len(exp.Procedure))
	}

	srv := server.New(server.Config{
		App:      cfg,
		Store:    experiment.NewStoreFrom(exp, experiment.WithRecorder(observer)),
		Observer: observer,
		Gatherer: reg,
		Persist:  persist,
		Logger:   logger.WithName("server"),
	})
	return srv.Run(ctx, cfg.ListenAddr)
}

func newPlanCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a kit can be placed on a plate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.ValidateKit(); err != nil {
				return err
			}
			remote := opts.ServerURL != ""
			cfg, err := opts.Complete()
			if err != nil {
				return err
			}

			var view planView
			if remote {
				view, err = remotePlan(cmd.Context(), cmd.ErrOrStderr(), client.NewFromConfig(cfg), opts.KitFile, cfg.DefaultPlate)
			} else {
				view, err = localPlan(cmd.Context(), cmd.ErrOrStderr(), opts.KitFile, cfg.DefaultPlate)
			}
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), view)
		},
	}
	opts.AddConfigFlags(cmd.Flags())
	opts.AddKitFlags(cmd.Flags(), false)
	opts.AddRemoteFlags(cmd.Flags())
	return cmd
}

func newApplyCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a kit placement to the active experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.ValidateKit(); err != nil {
				return err
			}
			cfg, err := opts.Complete()
			if err != nil {
				return err
			}
			if opts.Local && cfg.StateFile == "" {
				cfg.StateFile = project.DefaultStatePath()
			}
			return runApply(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, cfg)
		},
	}
	opts.AddConfigFlags(cmd.Flags())
	opts.AddKitFlags(cmd.Flags(), true)
	opts.AddApplyFlags(cmd.Flags())
	return cmd
}

func runApply(ctx context.Context, out, errOut io.Writer, opts *Options, cfg model.AppConfig) error {
	kit, err := analyzeKit(ctx, errOut, opts.KitFile)
	if err != nil {
		return err
	}
	session, err := newSession(kit, cfg.DefaultPlate, opts.Blocks)
	if err != nil {
		return err
	}

	var result engine.ApplyResult
	if opts.Local {
		exp, err := project.LoadSnapshot(cfg.StateFile)
		if err != nil {
			return err
		}
		store := experiment.NewStoreFrom(exp)
		if result, err = session.Apply(ctx, store); err != nil {
			return err
		}
		if err := project.SaveSnapshot(cfg.StateFile, store.Get()); err != nil {
			return err
		}
	} else {
		if result, err = session.Apply(ctx, client.NewFromConfig(cfg)); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s: %d materials added, %d skipped, %d procedure wells with kit materials\n",
		result.Message, result.AddedMaterials, result.SkippedMaterials, result.ProcedureWellsUpdated)
	return nil
}

func newExportCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a plate map of a kit placement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.ValidateKit(); err != nil {
				return err
			}
			if err := opts.ValidateExport(); err != nil {
				return err
			}
			cfg, err := opts.Complete()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, cfg)
		},
	}
	opts.AddConfigFlags(cmd.Flags())
	opts.AddKitFlags(cmd.Flags(), true)
	opts.AddExportFlags(cmd.Flags())
	return cmd
}

func runExport(ctx context.Context, out, errOut io.Writer, opts *Options, cfg model.AppConfig) error {
	kit, err := analyzeKit(ctx, errOut, opts.KitFile)
	if err != nil {
		return err
	}
	session, err := newSession(kit, cfg.DefaultPlate, opts.Blocks)
	if err != nil {
		return err
	}
	assignment, err := session.Assignment()
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(opts.Out), ".xlsx") {
		err = export.PlateMapXLSX(opts.Out, cfg.DefaultPlate, assignment)
	} else {
		var desc engine.PlacementDescriptor
		if desc, err = session.Descriptor(); err != nil {
			return err
		}
		err = export.PlateMapPDF(opts.Out, cfg.DefaultPlate, assignment, desc)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s (%d wells)\n", opts.Out, len(assignment))
	return nil
}

// analyzeKit reads the kit workbook and prints its warnings.
func analyzeKit(ctx context.Context, errOut io.Writer, path string) (model.KitDescriptor, error) {
	start := time.Now()
	result := importer.ImportKit(path)
	for _, w := range result.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	if !result.OK() {
		return model.KitDescriptor{}, fmt.Errorf("cannot use kit %s: %s", path, strings.Join(result.Errors, "; "))
	}
	klog.FromContext(ctx).V(2).Info("Analyzed kit", "path", path,
		"rows", result.Kit.Rows, "cols", result.Kit.Cols, "duration", time.Since(start))
	return result.Kit, nil
}

// newSession opens a session on plate and selects blocks in order.
func newSession(kit model.KitDescriptor, plate model.PlateType, blocks []string) (*engine.Session, error) {
	session, err := engine.NewSession(kit)
	if err != nil {
		return nil, err
	}
	strategy, err := session.SetDestination(plate)
	if err != nil {
		return nil, err
	}
	if !strategy.Supported() {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedPlacement, strategy.Reason)
	}
	if strategy.Kind.AutoSelected() {
		return session, nil
	}
	for _, id := range blocks {
		if err := session.Toggle(id); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// planView is what the plan command prints, however it was computed.
type planView struct {
	Size      model.KitSize
	Materials int
	Strategy  engine.Strategy
}

func localPlan(ctx context.Context, errOut io.Writer, path string, plate model.PlateType) (planView, error) {
	kit, err := analyzeKit(ctx, errOut, path)
	if err != nil {
		return planView{}, err
	}
	strategy, err := engine.ResolveForPlate(kit.Rows, kit.Cols, plate)
	if err != nil {
		return planView{}, err
	}
	return planView{Size: kit.Size(), Materials: len(kit.Materials), Strategy: strategy}, nil
}

// remotePlan uploads the kit for analysis and asks the server for the
// strategy.
func remotePlan(ctx context.Context, errOut io.Writer, c *client.Client, path string, plate model.PlateType) (planView, error) {
	f, err := os.Open(path)
	if err != nil {
		return planView{}, err
	}
	defer f.Close()

	analyzed, err := c.Analyze(ctx, filepath.Base(path), f)
	if err != nil {
		return planView{}, err
	}
	for _, w := range analyzed.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	plan, err := c.Plan(ctx, analyzed.KitSize.KitSize, plate)
	if err != nil {
		return planView{}, err
	}
	return planView{Size: analyzed.KitSize.KitSize, Materials: len(analyzed.Materials), Strategy: plan.Strategy}, nil
}

func printPlan(w io.Writer, v planView) error {
	shape, known := model.ClassifyKit(v.Size.Rows, v.Size.Columns)
	shapeText := string(shape)
	if !known {
		shapeText = fmt.Sprintf("%dx%d (unrecognized)", v.Size.Rows, v.Size.Columns)
	}

	strategy := v.Strategy
	fmt.Fprintf(w, "Kit:       %s, %d materials, %d of %d wells used\n", shapeText, v.Materials, v.Size.ContentWells, v.Size.TotalWells)
	fmt.Fprintf(w, "Plate:     %s\n", strategy.Layout.Name)
	fmt.Fprintf(w, "Strategy:  %s (%s select)\n", strategy.Kind, strategy.Cardinality())
	if base := strategy.Kind.Base(); base != strategy.Kind {
		fmt.Fprintf(w, "Layout:    %s\n", base)
	}
	if !strategy.Supported() {
		fmt.Fprintf(w, "Reason:    %s\n", strategy.Reason)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tANCHOR\tLABEL")
	for _, b := range strategy.Blocks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Anchor, b.Label)
	}
	return tw.Flush()
}

func newStatusCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the active experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Complete()
			if err != nil {
				return err
			}
			var exp model.Experiment
			if opts.Local {
				if cfg.StateFile == "" {
					cfg.StateFile = project.DefaultStatePath()
				}
				exp, err = project.LoadSnapshot(cfg.StateFile)
			} else {
				exp, err = client.NewFromConfig(cfg).Experiment(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), exp)
		},
	}
	opts.AddConfigFlags(cmd.Flags())
	opts.AddApplyFlags(cmd.Flags())
	return cmd
}

func printStatus(w io.Writer, exp model.Experiment) error {
	kitWells := 0
	for _, pw := range exp.Procedure {
		if pw.HasKitMaterial() {
			kitWells++
		}
	}
	fmt.Fprintf(w, "Plate:      %s-well\n", exp.Context.PlateType)
	fmt.Fprintf(w, "Materials:  %d\n", len(exp.Materials))
	fmt.Fprintf(w, "Wells:      %d (%d with kit materials)\n", len(exp.Procedure), kitWells)
	if len(exp.Materials) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MATERIAL\tCAS\tSOURCE")
	for _, m := range exp.Materials {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Ref(), m.CAS, m.Source)
	}
	return tw.Flush()
}
