package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/selectionstore/internal/app"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/config"
)

var (
	// Global flags
	cfgFile  string
	storeDir string
	verbose  bool
)

// errNotOK makes the process exit non-zero after a failed result was printed
var errNotOK = errors.New("operation reported failure")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "selectionctl",
		Short: "Inspect and manage persisted file selections",
		Long: `selectionctl opens a selection store and runs a single operation
against it. Results are printed as JSON; a result with "ok": false exits 1.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&storeDir, "dir", "", "Store directory (overrides config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")

	root.AddCommand(
		newAddCmd(),
		newListCmd(),
		newStatusCmd(),
		newCountCmd(),
		newRemoveCmd(),
		newPermsCmd(),
		newReconcileCmd(),
	)
	return root
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNotOK) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	// One-shot process: let signals keep their default behavior.
	cfg.Transient.WatchSignals = false
	return cfg, nil
}

// withApp runs fn against an initialized app and always closes it
func withApp(cmd *cobra.Command, tune func(*config.Config), fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if tune != nil {
		tune(cfg)
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

// printJSON outputs data as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResult prints v and turns ok=false into errNotOK
func printResult(cmd *cobra.Command, v any, ok bool) error {
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !ok {
		return errNotOK
	}
	return nil
}
