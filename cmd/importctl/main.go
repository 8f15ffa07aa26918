package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/internal/app"
	"catalog-service/internal/config"
	"catalog-service/internal/importer"
	"catalog-service/internal/jobs"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

var (
	verbose         bool
	skipSellerCheck bool
)

var rootCmd = &cobra.Command{
	Use:   "importctl",
	Short: "Operate catalog imports without the HTTP API",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && verbose {
			log.Println("No .env file found, using system environment variables")
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress")
	rootCmd.PersistentFlags().BoolVar(&skipSellerCheck, "skip-seller-check", false, "Do not verify the seller against the vendor service")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// environment is everything a command needs to process runs in-process
type environment struct {
	cfg      *config.Config
	redis    *redis.Client
	pipeline *app.Pipeline
	logger   *logrus.Logger
}

func newEnvironment(ctx context.Context) (*environment, error) {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, logger: logger}
	if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
		opts.Password = secrets.GetRedisPassword()
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unavailable, caches and shared claims disabled")
			_ = client.Close()
		} else {
			env.redis = client
		}
		cancel()
	}

	env.pipeline, err = app.NewPipeline(ctx, cfg, db, env.redis, logger)
	if err != nil {
		return nil, err
	}
	if skipSellerCheck {
		env.pipeline.SkipSellerCheck()
	}
	return env, nil
}

// orchestrator processes runs synchronously, attaching report lines as rows finish
func (e *environment) orchestrator() *importer.Orchestrator {
	return e.pipeline.Orchestrator(jobs.NewDirectReportQueue(e.pipeline.Attacher))
}

func (e *environment) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

func printSummary(cmd *cobra.Command, summary *importer.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Import:     %s\n", summary.ImportID)
	fmt.Fprintf(out, "Status:     %s\n", summary.Status)
	fmt.Fprintf(out, "Rows:       %d\n", summary.TotalRows)
	fmt.Fprintf(out, "Succeeded:  %d\n", summary.TotalRowSuccess)
	if summary.Message != "" {
		fmt.Fprintf(out, "Message:    %s\n", summary.Message)
	}
}
