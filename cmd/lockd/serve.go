package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-lockd/v1/api"
	"github.com/mirkobrombin/go-lockd/v1/config"
	"github.com/mirkobrombin/go-lockd/v1/lock"
	"github.com/mirkobrombin/go-lockd/v1/manager"
	"github.com/mirkobrombin/go-lockd/v1/metrics"
)

var (
	serveConfig = &config.Config{}
	serveCmd    = &cobra.Command{
		Use:   "serve",
		Short: "Start the lockd server",
		Long: `Start the lockd server with the specified configuration. Every flag can
also be set via environment variable with the LOCKD_ prefix
(e.g. LOCKD_STORAGE=redis, LOCKD_REDIS_ADDR=localhost:6379).`,
		PreRunE: processConfig,
		RunE:    runServe,
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	serveCmd.PersistentFlags().String("storage", "memory", "lock store backend (memory, redis)")
	serveCmd.PersistentFlags().String("host", "127.0.0.1", "address the HTTP API binds to")
	serveCmd.PersistentFlags().Int("port", 8080, "port the HTTP API binds to")

	serveCmd.PersistentFlags().String("redis-addr", "127.0.0.1:6379", "redis address (host:port)")
	serveCmd.PersistentFlags().String("redis-username", "", "redis username")
	serveCmd.PersistentFlags().String("redis-password", "", "redis password")
	serveCmd.PersistentFlags().Int("redis-db", 0, "redis logical database index")

	serveCmd.PersistentFlags().Bool("persist", true, "(memory backend) snapshot live locks to disk")
	serveCmd.PersistentFlags().String("persist-path", "data/locks.json", "(memory backend) snapshot file path")
	serveCmd.PersistentFlags().Duration("persist-interval", 30*time.Second, "(memory backend) snapshot interval")
	serveCmd.PersistentFlags().Duration("sweep-interval", time.Minute, "(memory backend) expired lock sweep interval")

	serveCmd.PersistentFlags().Bool("trace", false, "emit traces to stdout")
}

// initEnv loads env files and binds the LOCKD_ environment to viper.
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("lockd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// processConfig builds the server configuration from flags and environment.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	*serveConfig = config.Config{
		Storage: config.StorageType(viper.GetString("storage")),
		Redis: config.RedisConfig{
			Addr:     viper.GetString("redis-addr"),
			Username: viper.GetString("redis-username"),
			Password: viper.GetString("redis-password"),
			DB:       viper.GetInt("redis-db"),
		},
		Memory: config.MemoryConfig{
			PersistEnabled:  viper.GetBool("persist"),
			PersistPath:     viper.GetString("persist-path"),
			PersistInterval: viper.GetDuration("persist-interval"),
			SweepInterval:   viper.GetDuration("sweep-interval"),
		},
		Host:  viper.GetString("host"),
		Port:  viper.GetInt("port"),
		Trace: viper.GetBool("trace"),
	}
	return serveConfig.Validate()
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := serveConfig
	log.Printf("starting lockd v%s%s", version, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Trace {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		otel.SetTracerProvider(tp)
	}

	reg := metrics.NewRegistry()
	metrics.RegisterLockMetrics(reg)

	// The backend is chosen once and never swapped at runtime.
	var (
		store lock.Store
		mem   *lock.InMemory
	)
	switch cfg.Storage {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return err
		}
		store = lock.NewRedis(client)
		log.Printf("using redis store at %s", cfg.Redis.Addr)
	default:
		mem = lock.NewInMemory()
		if cfg.Memory.PersistEnabled {
			n, err := mem.LoadSnapshot(cfg.Memory.PersistPath)
			if err != nil {
				log.Printf("snapshot restore failed: %v", err)
			} else if n > 0 {
				log.Printf("restored %d locks from %s", n, cfg.Memory.PersistPath)
			}
		}
		store = mem
		log.Printf("using in-memory store")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewHandler(manager.New(store)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: mux}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("listening on http://%s", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if mem != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Memory.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := mem.Sweep(); n > 0 {
						log.Printf("swept %d expired locks", n)
					}
				case <-ctx.Done():
					return nil
				}
			}
		})

		if cfg.Memory.PersistEnabled {
			g.Go(func() error {
				ticker := time.NewTicker(cfg.Memory.PersistInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						if _, err := mem.SaveSnapshot(cfg.Memory.PersistPath); err != nil {
							log.Printf("snapshot save failed: %v", err)
						}
					case <-ctx.Done():
						// final snapshot on shutdown
						if n, err := mem.SaveSnapshot(cfg.Memory.PersistPath); err != nil {
							log.Printf("final snapshot failed: %v", err)
						} else {
							log.Printf("saved %d locks to %s", n, cfg.Memory.PersistPath)
						}
						return nil
					}
				}
			})
		}
	}

	return g.Wait()
}
