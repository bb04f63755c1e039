package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/pkg/adapters/httpapi"
	redisAdapter "github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/observability"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the simulator behind a JSON API. Configuration comes from the
environment (ESPALIER_PORT, ESPALIER_FLOW_DIR, ESPALIER_REDIS_ADDR...);
flags override it.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := cli.LoadServeConfig()
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("dir") {
			cfg.FlowDir, _ = cmd.Flags().GetString("dir")
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetString("port")
		}

		streams := httpapi.NewStreamManager()
		hooks := streams.Hooks()

		var metrics *observability.Metrics
		if cfg.Metrics {
			metrics = observability.NewMetrics()
			hooks = combineHooks(hooks, metrics.Hooks())
		}

		simOpts := []espalier.Option{
			espalier.WithLifecycleHooks(hooks),
		}

		if cfg.RedisAddr != "" {
			client := goredis.NewClient(&goredis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			simOpts = append(simOpts,
				espalier.WithStore(redisAdapter.NewFromClient(client)),
				espalier.WithDistributedLocker(redisAdapter.NewLocker(client, "espalier")),
			)
		}

		sim, err := espalier.New(cfg.FlowDir, simOpts...)
		if err != nil {
			fmt.Printf("Error initializing espalier: %v\n", err)
			os.Exit(1)
		}

		handlerOpts := []httpapi.HandlerOption{
			httpapi.WithStreamManager(streams),
		}
		if metrics != nil {
			handlerOpts = append(handlerOpts, httpapi.WithMetricsHandler(metrics.Handler()))
		}
		handler := httpapi.NewHandler(sim, handlerOpts...)

		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: handler,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Espalier Server on %s\n", srv.Addr)
			fmt.Printf("Serving flow from: %s\n", cfg.FlowDir)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Espalier Server stopped gracefully")
		}
	},
}

// combineHooks fans each lifecycle event out to both hook sets.
func combineHooks(a, b domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnAppended: func(ctx context.Context, e *domain.TurnEvent) {
			if a.OnTurnAppended != nil {
				a.OnTurnAppended(ctx, e)
			}
			if b.OnTurnAppended != nil {
				b.OnTurnAppended(ctx, e)
			}
		},
		OnBranchForked: func(ctx context.Context, e *domain.ForkEvent) {
			if a.OnBranchForked != nil {
				a.OnBranchForked(ctx, e)
			}
			if b.OnBranchForked != nil {
				b.OnBranchForked(ctx, e)
			}
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			if a.OnDecision != nil {
				a.OnDecision(ctx, e)
			}
			if b.OnDecision != nil {
				b.OnDecision(ctx, e)
			}
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
