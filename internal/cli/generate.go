package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teslashibe/entropass/internal/config"
	"github.com/teslashibe/entropass/internal/log"
	"github.com/teslashibe/entropass/pkg/backup"
	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/capture/opencv"
	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/grid"
	"github.com/teslashibe/entropass/pkg/password"
	"github.com/teslashibe/entropass/pkg/pipeline"
)

var generateBindings = map[string]string{
	"capture.frame_interval":  "interval",
	"capture.frame_timeout":   "timeout",
	"capture.grid_min":        "grid-min",
	"capture.grid_max":        "grid-max",
	"capture.preferred_index": "preferred-index",
	"capture.max_index":       "max-index",
	"capture.retries":         "retries",
	"capture.retry_delay":     "delay",
	"capture.resolution":      "resolution",
	"password.length":         "length",
	"password.groups":         "groups",
	"password.required":       "required",
	"password.extra":          "extra",
	"digest.hash":             "hash",
	"backup.json_path":        "out-json",
	"backup.sqlite_path":      "db",
}

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a password from webcam frames",
		Long: "Generate a password from webcam frames. One frame is captured per five characters.\n" +
			"When stdin is a terminal you are asked to confirm and to choose a length.",
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	d := config.Default(config.ProfileCLI)
	f := cmd.Flags()
	f.Duration("interval", d.Capture.FrameInterval, "Pause between captured frames")
	f.Duration("timeout", d.Capture.FrameTimeout, "Maximum wait for each frame")
	f.Bool("no-preview", false, "Do not show the preview window")
	f.Int("grid-min", d.Capture.GridMin, "Smallest grid size per frame")
	f.Int("grid-max", d.Capture.GridMax, "Largest grid size per frame")
	f.String("out-json", "", "Write a JSON backup of the captured samples")
	f.String("db", "", "Archive the captured samples in this SQLite database")
	f.Bool("diag", false, "Print every failed camera open attempt")
	f.Int("preferred-index", d.Capture.PreferredIndex, "Camera index tried first")
	f.Int("max-index", d.Capture.MaxIndex, "Highest camera index probed")
	f.Int("retries", d.Capture.Retries, "Open attempts per camera index")
	f.Duration("delay", d.Capture.RetryDelay, "Pause after a failed open attempt")
	f.Bool("no-try-all", false, "Only try the preferred camera index")
	f.String("resolution", "", "Capture size: default, vga, 720p, 1080p or WIDTHxHEIGHT")
	f.IntP("length", "l", d.Password.Length, "Password length (skips the prompt)")
	f.String("groups", d.Password.Groups, "Allowed groups: upper,lower,digits,symbols")
	f.String("required", "", "Groups that must appear (default: all allowed)")
	f.String("extra", "", "Extra characters added to the alphabet")
	f.String("hash", d.Digest.Hash, "Digest hash: sha512, blake2b-512, sha3-512")
	f.BoolP("yes", "y", false, "Do not ask for confirmation")

	RootCmd.AddCommand(cmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.ProfileCLI, generateBindings)
	if err != nil {
		return &ExitError{Code: ExitCapture, Err: err}
	}
	if err := initLogging(cfg); err != nil {
		return &ExitError{Code: ExitCapture, Err: err}
	}
	defer log.Close()

	flags := cmd.Flags()
	if noPreview, _ := flags.GetBool("no-preview"); noPreview {
		cfg.Capture.Preview = false
	}
	if noTryAll, _ := flags.GetBool("no-try-all"); noTryAll {
		cfg.Capture.ProbeOthers = false
	}
	yes, _ := flags.GetBool("yes")
	diag, _ := flags.GetBool("diag")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	env := generateEnv{
		opener:      newOpener(cfg),
		in:          os.Stdin,
		out:         cmd.OutOrStdout(),
		interactive: !yes && term.IsTerminal(int(os.Stdin.Fd())),
		askLength:   !flags.Changed("length"),
		logger:      log.L(),
	}
	if cfg.Capture.Preview {
		env.preview = func() pipeline.Previewer { return opencv.NewPreview("entropass") }
	}
	if diag {
		env.diag = cmd.ErrOrStderr()
	}
	return generate(ctx, cfg, env)
}

// generateEnv holds the collaborators of generate that tests replace.
type generateEnv struct {
	opener      capture.Opener
	preview     func() pipeline.Previewer
	in          io.Reader
	out         io.Writer
	diag        io.Writer
	interactive bool
	askLength   bool
	logger      *slog.Logger
	builderOpts []entropy.Option
}

func generate(ctx context.Context, cfg *config.Config, env generateEnv) error {
	logger := env.logger
	if logger == nil {
		logger = slog.Default()
	}
	out := env.out

	p := newPrompter(env.in, out, env.interactive)
	ok, err := p.confirmOpen()
	if err != nil {
		return &ExitError{Code: ExitCancelled, Err: err}
	}
	if !ok {
		fmt.Fprintln(out, "Cancelled.")
		return &ExitError{Code: ExitCancelled}
	}

	length := cfg.Password.Length
	if env.askLength {
		if length, err = p.length(password.MinLength, password.MaxLength, cfg.Password.Length); err != nil {
			return &ExitError{Code: ExitCancelled, Err: err}
		}
	}

	frames := pipeline.FramesFor(length)
	lo := max(grid.MinSize, cfg.Capture.GridMin)
	hi := max(lo, cfg.Capture.GridMax)
	fmt.Fprintf(out, "Capturing %d frame(s) with random grids between %dx%d and %dx%d.\n",
		frames, lo, lo, hi, hi)
	if env.preview != nil {
		fmt.Fprintln(out, "A preview window will open; press 'q' to stop capturing.")
	}

	builder, err := cfg.NewBuilder(append([]entropy.Option{entropy.WithLogger(logger)}, env.builderOpts...)...)
	if err != nil {
		return &ExitError{Code: ExitCapture, Err: err}
	}

	camera := capture.NewCamera(env.opener, logger)
	camera.Diag = env.diag

	gen := pipeline.New(camera, builder, password.NewSynthesizer(logger), cfg.PipelineOptions(), logger)
	if env.preview != nil {
		gen.Preview = env.preview()
	}

	res, err := gen.Generate(ctx, cfg.Request(length))
	if err != nil {
		if cfg.Log.File != "" {
			fmt.Fprintf(out, "Details in %s\n", cfg.Log.File)
		}
		return &ExitError{Code: exitCode(err), Err: errors.New(pipeline.PublicMessage(err))}
	}

	fmt.Fprintf(out, "\nPassword (%d): %s\n", res.Length, res.Password)

	if w, closeFn := backupWriters(cfg, out, logger); w != nil {
		defer closeFn()
		rec := backup.NewRecord(res.ID, res.Samples, res.Length)
		if err := w.Write(ctx, rec); err != nil {
			logger.Warn("backup.failed", "request_id", res.ID, "error", err)
			fmt.Fprintf(out, "Could not write backup: %v\n", err)
		} else {
			fmt.Fprintf(out, "Backup saved (%s).\n", rec.ID)
		}
	}
	return nil
}

func exitCode(err error) int {
	switch pipeline.Classify(err) {
	case pipeline.CategoryDevice:
		return ExitDevice
	case pipeline.CategoryTimeout:
		return ExitCancelled
	default:
		if errors.Is(err, pipeline.ErrCancelled) {
			return ExitCancelled
		}
		return ExitCapture
	}
}

// backupWriters returns the configured backup targets, or nil when none are.
func backupWriters(cfg *config.Config, out io.Writer, logger *slog.Logger) (backup.Writer, func()) {
	var ws backup.Multi
	closeFn := func() {}

	if cfg.Backup.JSONPath != "" {
		ws = append(ws, backup.JSONFile{Path: cfg.Backup.JSONPath})
	}
	if cfg.Backup.SQLitePath != "" {
		store, err := backup.NewSQLiteStore(cfg.Backup.SQLitePath)
		if err != nil {
			logger.Warn("backup.open_failed", "path", cfg.Backup.SQLitePath, "error", err)
			fmt.Fprintf(out, "Could not open backup database: %v\n", err)
		} else {
			ws = append(ws, store)
			closeFn = func() { store.Close() }
		}
	}
	if len(ws) == 0 {
		return nil, closeFn
	}
	return ws, closeFn
}
