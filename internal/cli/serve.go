package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/entropass/internal/config"
	"github.com/teslashibe/entropass/internal/log"
	"github.com/teslashibe/entropass/pkg/backup"
	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/password"
	"github.com/teslashibe/entropass/pkg/pipeline"
	"github.com/teslashibe/entropass/pkg/web"
)

var serveBindings = map[string]string{
	"server.port":        "port",
	"server.static_dir":  "static",
	"backup.json_path":   "out-json",
	"backup.sqlite_path": "db",
	"digest.hash":        "hash",
	"capture.resolution": "resolution",
}

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the password API and web pages",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	d := config.Default(config.ProfileServer)
	cmd.Flags().IntP("port", "p", d.Server.Port, "Listen port ($PORT is honoured)")
	cmd.Flags().String("static", d.Server.StaticDir, "Directory with the static pages")
	cmd.Flags().String("out-json", "", "Write a JSON backup of the latest request")
	cmd.Flags().String("db", "", "Archive captured samples in this SQLite database")
	cmd.Flags().String("hash", d.Digest.Hash, "Digest hash: sha512, blake2b-512, sha3-512")
	cmd.Flags().String("resolution", "", "Capture size: default, vga, 720p, 1080p or WIDTHxHEIGHT")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.ProfileServer, serveBindings)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener := newOpener(cfg)
	srv, closeFn, err := newServer(cfg, opener)
	if err != nil {
		return err
	}
	defer closeFn()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("server.shutdown")
		return srv.Shutdown()
	}
}

// newServer wires the capture pipeline, backups and the HTTP server.
func newServer(cfg *config.Config, opener capture.Opener, builderOpts ...entropy.Option) (*web.Server, func(), error) {
	logger := log.L()

	builder, err := cfg.NewBuilder(append([]entropy.Option{entropy.WithLogger(logger)}, builderOpts...)...)
	if err != nil {
		return nil, nil, err
	}
	gen := pipeline.New(capture.NewCamera(opener, logger), builder, password.NewSynthesizer(logger), cfg.PipelineOptions(), logger)

	srv := web.NewServer(web.Config{
		Port:            cfg.Server.Port,
		RateLimitMax:    cfg.Server.RateLimitMax,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		RequestTimeout:  cfg.Server.RequestTimeout,
		StaticDir:       cfg.Server.StaticDir,
		DefaultLength:   cfg.Password.Length,
		Request:         cfg.Request,
	}, gen, logger)
	gen.OnEvent = srv.PublishEvent

	closeFn := func() {}
	var ws backup.Multi
	if cfg.Backup.JSONPath != "" {
		ws = append(ws, backup.JSONFile{Path: cfg.Backup.JSONPath})
	}
	if cfg.Backup.SQLitePath != "" {
		store, err := backup.NewSQLiteStore(cfg.Backup.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, store)
		srv.Backups = store
		closeFn = func() { store.Close() }
	}
	if len(ws) > 0 {
		srv.Backup = ws
	}

	return srv, closeFn, nil
}
