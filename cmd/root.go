package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/logging"
)

var (
	version   = "0.1.0"
	verbose   bool
	prefsPath string
	logCfg    logging.Config

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "webx",
	Short: "Save images for the web",
	Long: `webx exports images to web formats (JPEG, PNG-24, PNG-8, GIF)
after an optional resize and crop, reporting the encoded size of each result.

Use "webx watch" to drive an interactive session from a YAML file: every
edit is debounced and re-rendered as a preview.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&logCfg.Level, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&logCfg.Format, "log-format", "console", "log format: console or json")
	pf.StringVar(&logCfg.File, "log-file", "", "also write JSON logs to this rotated file")
	pf.StringVar(&prefsPath, "prefs", "", "preferences file (default: user config dir)")
	logCfg.MaxSize, logCfg.MaxBackups, logCfg.MaxAge, logCfg.Compress = 50, 3, 14, true

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"webx %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

func setupLogger(*cobra.Command, []string) error {
	cfg := logCfg
	if verbose {
		cfg.Level = "debug"
	}
	l, err := logging.New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// logVerbose prints a message only when --verbose is set.
func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[webx] "+format+"\n", args...)
	}
}
