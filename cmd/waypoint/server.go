package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/waypoint/internal/api"
	"github.com/kalambet/waypoint/internal/simulate"
)

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve waypoint tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service: a.client,
			Loader:  a.loader(),
			Ledger:  a.ledger,
		}, version)

		slog.Info("MCP server started (stdio transport)", "service_url", a.client.BaseURL())
		stdioSrv := server.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- devserver ---

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local simulated analysis service",
	Long: `Run an in-memory analysis service implementing POST /analyze,
GET /results/{jobId} and GET /health. Jobs move from queued through
processing to complete on a timeline taken from an optional TOML scenario:

  queued_for = "3s"
  processing_for = "20s"
  payload_lag = "2s"   # report readable this long after "complete"
  reject_reads = 0     # first N reads of each job answer success=false
  fail = false
  error = "quota exceeded"

Point the client at it with WAYPOINT_SERVICE_BASE_URL=http://127.0.0.1:<port>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarioPath, _ := cmd.Flags().GetString("scenario")
		port, _ := cmd.Flags().GetInt("port")
		token, _ := cmd.Flags().GetString("token")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		if !cmd.Flags().Changed("port") {
			port = cfg.DevServer.Port
		}

		sc := simulate.DefaultScenario()
		if scenarioPath != "" {
			if sc, err = simulate.LoadScenario(scenarioPath); err != nil {
				return err
			}
		}

		return runDevServer(cmd.Context(), fmt.Sprintf("127.0.0.1:%d", port), sc, token)
	},
}

func init() {
	devserverCmd.Flags().String("scenario", "", "TOML scenario file")
	devserverCmd.Flags().Int("port", 8000, "listen port (default: devserver.port)")
	devserverCmd.Flags().String("token", "", "require this bearer token on job endpoints")
}

// runDevServer serves the simulated service on addr and advances its jobs
// until ctx is cancelled.
func runDevServer(ctx context.Context, addr string, sc simulate.Scenario, token string) error {
	store := simulate.NewStore(sc, nil)
	worker := simulate.NewWorker(store, nil, 250*time.Millisecond)

	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewServiceHandler(api.ServiceDeps{Store: store, Token: token}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "waypoint devserver listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		// Graceful shutdown with timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
