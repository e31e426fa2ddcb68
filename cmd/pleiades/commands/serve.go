package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/logging"
	"github.com/pleiades-agents/pleiades/internal/metrics"
	"github.com/pleiades-agents/pleiades/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve routing, planning and agent lookup over HTTP, with server-sent
events on /event and Prometheus metrics on /metrics.

With --watch (or watcher.enabled in the config file) the agents directory is
reloaded after changes settle. A reload that fails validation keeps the
previous registry in service.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 7420)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config, 127.0.0.1)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Reload agents when the directory changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("serve")

	bus := event.NewBus()
	defer bus.Close()

	collector := metrics.NewCollector(metrics.DefaultNamespace)
	detach := collector.Attach(bus)
	defer detach()

	a, err := loadApp(bus)
	if err != nil {
		return err
	}
	log.Info().Str("version", Version).Str("agents", a.config.AgentsDir).Msg("starting pleiades server")

	ctx := cmd.Context()
	if _, err := a.dispatcher.Reload(ctx, dispatch.TriggerStartup); err != nil {
		return err
	}

	w, err := a.startWatcher(serveWatch)
	if err != nil {
		return err
	}
	if w != nil {
		defer w.Stop()
		log.Info().Str("dir", a.config.AgentsDir).Msg("watching agents directory")
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = a.config.Server.Hostname
	serverConfig.Port = a.config.Server.Port
	if a.config.Server.CORS != nil {
		serverConfig.EnableCORS = *a.config.Server.CORS
	}
	if serveHostname != "" {
		serverConfig.Hostname = serveHostname
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}
	serverConfig.Version = Version

	srv := server.New(serverConfig, a.dispatcher, bus, collector)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(os.Stderr, "pleiades %s listening on http://%s\n", Version, srv.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
	return nil
}
