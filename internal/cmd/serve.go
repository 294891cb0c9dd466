package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/authcap/internal/authsource"
	"github.com/steveyegge/authcap/internal/bus"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/config"
	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/supervisor"
	"github.com/steveyegge/authcap/internal/web"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupServer,
	Short:   "Run the capture supervisor and its control surface",
	Long: `Run the long-lived server: it loads the credential store, supervises
capture processes and serves the control API.

API Endpoints:
  POST /api/setup-auth/start      Start a capture ({"mode":"create"} or {"mode":"relogin","targetIndex":3})
  POST /api/setup-auth/continue   Signal the capture that login is done
  POST /api/setup-auth/cancel     Terminate the running capture
  GET  /api/setup-auth/status     Capture status
  GET  /api/setup-auth/ws         Status event stream (websocket)
  GET  /api/auth/sources          Loaded credential indices
  POST /api/auth/sources/switch   Select a credential ({"index":2}, or no body for the next one)

Examples:
  authcap serve                   # Listen on the configured address (default 127.0.0.1:7860)
  authcap serve --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, cfgFile, logger.Printf)
	if err != nil {
		return err
	}
	defer srv.close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}
	logger.Printf("authcap: control surface listening on http://%s", ln.Addr())
	return srv.run(ctx, ln)
}

// server wires the supervisor to its reload sink, observers and API.
type server struct {
	logger  func(format string, args ...interface{})
	source  *authsource.Source
	sup     *supervisor.Supervisor
	hub     *web.Hub
	pub     *bus.Publisher
	watcher *authsource.Watcher
}

func newServer(ctx context.Context, cfg *config.Config, configPath string, logger func(format string, args ...interface{})) (*server, error) {
	store := credstore.New(cfg.Store.Dir)
	source := authsource.New(store, cfg.Server.InitialAuthIndex, logger)
	if err := source.ReloadAuthSources(); err != nil {
		logger("authcap: initial credential load: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if configPath != "" && !filepath.IsAbs(configPath) {
		configPath = filepath.Join(cwd, configPath)
	}

	sup := supervisor.New(supervisor.Config{
		Store:    store,
		Sink:     source,
		Command:  captureCommand(configPath),
		Dir:      cwd,
		Lang:     cfg.Capture.Lang,
		LockFile: cfg.Capture.LockFile,
	}, logger)

	hub := web.NewHub(logger)
	sup.Observe(hub.Observe)

	pub, err := bus.Connect(ctx, bus.Config{
		URL:     cfg.Bus.NATSURL,
		Token:   cfg.Bus.Token,
		Subject: cfg.Bus.Subject,
	}, logger)
	if err != nil {
		// The bus is optional; run without it.
		logger("authcap: credential events disabled: %v", err)
	}
	if pub != nil {
		sup.Observe(pub.Observe)
		logger("authcap: publishing credential events to %s", cfg.Bus.NATSURL)
	}

	return &server{
		logger:  logger,
		source:  source,
		sup:     sup,
		hub:     hub,
		pub:     pub,
		watcher: authsource.NewWatcher(cfg.Store.Dir, source, logger),
	}, nil
}

// captureCommand re-executes this binary as the capture process with the
// same config file.
func captureCommand(configPath string) supervisor.CommandFunc {
	return func(mode capture.Mode, targetIndex int) (string, []string) {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		args := capture.Args(mode, targetIndex)
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return exe, args
	}
}

func (s *server) run(ctx context.Context, ln net.Listener) error {
	go func() {
		if err := s.watcher.Run(ctx); err != nil {
			s.logger("authcap: store watcher stopped: %v", err)
		}
	}()

	err := web.Serve(ctx, ln, web.NewHandler(s.sup, s.source, s.hub))
	if st := s.sup.Status(); st.Running {
		s.logger("authcap: shutting down, canceling capture run %s", st.RunID)
		s.sup.Cancel()
	}
	return err
}

func (s *server) close() {
	s.hub.Close()
	if s.pub != nil {
		if err := s.pub.Close(); err != nil {
			s.logger("authcap: closing bus: %v", err)
		}
	}
}
