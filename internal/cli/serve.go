package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/server"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the tagger over HTTP:
- POST /api/tag/text      classify a passage and append it to the graph
- GET  /api/epistemologies category explanations
- GET  /api/categories     full catalogue
- GET  /api/graph          nodes and links (?format=yaml)
- GET  /api/stats          tag distribution
- GET  /health, /metrics

Example:
  epimap serve
  epimap serve --port 9000
  EPIMAP_STORAGE_JOURNAL_PATH=./epimap.db epimap serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := server.NewServer(a.pipeline, cfg.Server, a.logger,
		server.WithGatherer(a.registry),
		server.WithVersion(Version),
	)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	a.logger.Info("server stopped", zap.Int("nodes", a.graph.Len()))
	return nil
}
