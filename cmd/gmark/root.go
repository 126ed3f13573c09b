package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/engine"
	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/storage"
)

// app holds what every subcommand shares. The engine is opened lazily by
// the root's pre-run hook.
type app struct {
	configPath string
	debug      bool

	cfg    *storage.Config
	log    logger.Logger
	engine *engine.Engine
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "gmark",
		Short: "Local-first bookmark maintenance",
		Long: `gmark migrates a browser bookmark file into a local store, classifies
every link, finds and merges duplicates and keeps the store under its quota.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/gmark/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newMigrateCommand(a),
		newStatusCommand(a),
		newResetCommand(a),
		newCleanupFoldersCommand(a),
		newClassifyCommand(a),
		newDuplicatesCommand(a),
		newStorageCommand(a),
		newSettingsCommand(a),
		newProviderCommand(a),
		newSaveCommand(a),
		newSearchCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newRPCCommand(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, args []string) error {
	path := a.configPath
	if path == "" {
		var err error
		if path, err = storage.DefaultConfigFilePath(); err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
	}

	cfg, err := storage.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg

	a.log, err = logger.New(cfg.LogLevel, cfg.PrettyLog())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	a.engine, err = engine.Open(cfg, a.log)
	if err != nil {
		return err
	}
	return a.engine.Start(cmd.Context())
}

func (a *app) close() error {
	var err error
	if a.engine != nil {
		err = a.engine.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openURL opens a URL in the default browser.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
