// Package cli implements the entropass commands.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/entropass/internal/config"
	"github.com/teslashibe/entropass/internal/log"
	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/capture/opencv"
)

// Exit codes of the generate command.
const (
	ExitOK        = 0
	ExitCancelled = 1
	ExitDevice    = 2
	ExitCapture   = 3
)

var (
	configPath string
	logLevel   string
	logFile    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "entropass",
	Short:         "Passwords from camera noise",
	Long:          "Capture a few webcam frames, reduce them to per-cell colour means and derive a password from their salted hash.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./entropass.yaml if present)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file")
}

// ExitError carries a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs RootCmd and returns the process exit code.
func Execute() int {
	err := RootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return ExitCapture
}

// loadConfig builds the configuration for p with flag overrides bound.
// bind maps config keys to flag names of cmd.
func loadConfig(cmd *cobra.Command, p config.Profile, bind map[string]string) (*config.Config, error) {
	v := config.New(p, configPath)
	if err := bindFlags(v, cmd, bind); err != nil {
		return nil, err
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	if logFile != "" {
		v.Set("log.file", logFile)
	}
	return config.Load(v)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bind map[string]string) error {
	for key, name := range bind {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// newOpener returns the OpenCV opener for the configured resolution.
// Validate has already rejected unknown resolutions.
func newOpener(cfg *config.Config) *opencv.Opener {
	res, _ := capture.LookupResolution(cfg.Capture.Resolution)
	return opencv.NewOpener(res)
}

func initLogging(cfg *config.Config) error {
	return log.InitFile(cfg.Log.Level, cfg.Log.File)
}
