package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/piwi3910/KitPlacer/internal/model"
	"github.com/piwi3910/KitPlacer/internal/project"
)

// Options holds the command line flags shared by every subcommand. Zero or
// unchanged values fall back to the config file.
type Options struct {
	// ConfigPath is the AppConfig file
	ConfigPath string

	// KitFile is the kit workbook to analyze
	KitFile string

	// Plate is the destination plate ("24", "48", "96")
	Plate string

	// Blocks are the block IDs to select, in order
	Blocks []string

	// ServerURL is the API the apply command sends to
	ServerURL string

	// Local applies into the state file instead of a server
	Local bool

	// Out is the export destination, .pdf or .xlsx
	Out string

	// Addr is the address serve listens on
	Addr string

	// StateFile is the experiment snapshot
	StateFile string

	// Timeout bounds each API request
	Timeout time.Duration
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		ConfigPath: project.DefaultConfigPath(),
		Blocks:     []string{},
	}
}

// AddConfigFlags adds the flags every command reads.
func (o *Options) AddConfigFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", o.ConfigPath, "Path to the kitplacer config file")
}

// AddKitFlags adds the flags that pick a kit, a plate and blocks.
func (o *Options) AddKitFlags(fs *pflag.FlagSet, withBlocks bool) {
	fs.StringVar(&o.KitFile, "kit", o.KitFile, "Kit workbook (.xlsx) with Materials and Design sheets")
	fs.StringVar(&o.Plate, "plate", o.Plate, "Destination plate: 24, 48 or 96 (default from config)")
	if withBlocks {
		fs.StringSliceVar(&o.Blocks, "block", o.Blocks, "Block ID to place the kit in; repeat for multi-select strategies")
	}
}

// AddApplyFlags adds the flags of the apply command.
func (o *Options) AddApplyFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ServerURL, "server", o.ServerURL, "Kit placement API base URL (default from config)")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Request timeout (default from config)")
	fs.BoolVar(&o.Local, "local", o.Local, "Apply into the state file instead of a server")
	fs.StringVar(&o.StateFile, "state-file", o.StateFile, "Experiment snapshot used with --local")
}

// AddRemoteFlags adds the flags of commands that can ask a server instead
// of working locally.
func (o *Options) AddRemoteFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ServerURL, "server", o.ServerURL, "Ask this kit placement API instead of working locally")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Request timeout (default from config)")
}

// AddServeFlags adds the flags of the serve command.
func (o *Options) AddServeFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "addr", o.Addr, "Listen address (default from config)")
	fs.StringVar(&o.StateFile, "state-file", o.StateFile, "Experiment snapshot to load and keep updated")
}

// AddExportFlags adds the flags of the export command.
func (o *Options) AddExportFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Out, "out", "o", o.Out, "Output file, .pdf or .xlsx")
}

// Complete loads the config file and overlays the flags that were set.
func (o *Options) Complete() (model.AppConfig, error) {
	cfg, err := project.LoadAppConfig(o.ConfigPath)
	if err != nil {
		return model.AppConfig{}, fmt.Errorf("failed to load config %s: %w", o.ConfigPath, err)
	}
	if o.Addr != "" {
		cfg.ListenAddr = o.Addr
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.StateFile != "" {
		cfg.StateFile = o.StateFile
	}
	if o.Timeout > 0 {
		cfg.RequestTimeout = int(o.Timeout.Round(time.Second) / time.Second)
		if cfg.RequestTimeout == 0 {
			cfg.RequestTimeout = 1
		}
	}
	if o.Plate != "" {
		pt, err := model.ParsePlateType(o.Plate)
		if err != nil {
			return model.AppConfig{}, err
		}
		cfg.DefaultPlate = pt
	}
	cfg.Normalize()
	return cfg, nil
}

// ValidateKit checks the flags of the kit commands.
func (o *Options) ValidateKit() error {
	var errs []error
	if o.KitFile == "" {
		errs = append(errs, errors.New("--kit is required"))
	}
	for _, b := range o.Blocks {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("--block must not be empty"))
			break
		}
	}
	return errors.Join(errs...)
}

// ValidateExport checks the export destination.
func (o *Options) ValidateExport() error {
	if o.Out == "" {
		return errors.New("--out is required")
	}
	switch strings.ToLower(filepath.Ext(o.Out)) {
	case ".pdf", ".xlsx":
		return nil
	default:
		return fmt.Errorf("--out must end in .pdf or .xlsx, got %q", o.Out)
	}
}
