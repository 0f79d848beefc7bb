package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gartstein/worklog/internal/worklog/auth"
	"github.com/gartstein/worklog/internal/worklog/config"
	"github.com/gartstein/worklog/internal/worklog/controller"
	gorm "github.com/gartstein/worklog/internal/worklog/db"
	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/handlers"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/gartstein/worklog/internal/worklog/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var configPath string

// producer is what serve publishes lifecycle events through.
type producer interface {
	controller.EventProducer
	Close()
}

func main() {
	root := &cobra.Command{
		Use:           "worklog",
		Short:         "Construction work-log service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	root.AddCommand(serveCmd(), migrateCmd(), watchCmd(), assignCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// initLogger initializes a Zap production logger, or a development one at debug level.
func initLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func syncLogger(logger *zap.Logger) {
	// Syncing stderr fails on some terminals; nothing useful can be done about it.
	_ = logger.Sync()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC service and the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			repo, err := gorm.NewRepository(cfg.Database())
			if err != nil {
				logger.Error("Failed to initialize database", zap.Error(err))
				return err
			}
			defer repo.Close()

			prod := newProducer(cfg, logger)
			defer prod.Close()

			svc := controller.NewWorkLogService(repo, prod, logger,
				controller.WithWorkerConfirmation(cfg.RequireWorkerConfirmation))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessions := session.NewMemoryStore(cfg.SessionTTL)
			go session.RunSweeper(ctx, sessions, cfg.SessionSweepInterval, logger)

			authenticator := auth.NewAuthenticator(cfg.JWTSecret, sessions)
			authInterceptor := auth.NewAuthInterceptor(authenticator, auth.DefaultPolicy())

			workLogHandler := handlers.NewWorkLogHandler(svc, logger)
			server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger, grpc.UnaryInterceptor(authInterceptor.Unary()))
			server.RegisterGRPCHandler(workLogHandler)
			if err := server.RegisterHTTPGateway(workLogHandler, authInterceptor, authenticator); err != nil {
				logger.Error("Failed to register HTTP gateway", zap.Error(err))
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					logger.Error("Failed to start servers", zap.Error(err))
				}
				return err
			case <-ctx.Done():
				server.Stop()
				logger.Info("Servers stopped properly")
				return nil
			}
		},
	}
}

func newProducer(cfg *config.Config, logger *zap.Logger) producer {
	if !cfg.KafkaEnabled() {
		logger.Info("No Kafka brokers configured, logging events instead")
		return events.NewLogProducer(logger)
	}
	if err := events.EnsureTopic(cfg.KafkaBrokers, cfg.Topic, 3, logger); err != nil {
		logger.Warn("Could not reach Kafka to ensure topic", zap.Error(err), zap.String("topic", cfg.Topic))
	}
	return events.NewProducer(events.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.Topic,
	}, logger)
}

func migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			// Opening the repository migrates; SQLite schemas are managed by AutoMigrate.
			repo, err := gorm.NewRepository(cfg.Database())
			if err != nil {
				return err
			}
			defer repo.Close()

			if cfg.DBDriver == gorm.DriverSQLite {
				logger.Info("SQLite schema is up to date", zap.String("path", cfg.DBPath))
				return nil
			}
			if !statusOnly {
				if err := repo.Migrate(); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
			}
			status, err := repo.MigrationStatus()
			if err != nil {
				return err
			}
			logger.Info("Migration status",
				zap.Uint("current_version", status.CurrentVersion),
				zap.Uint("latest_version", status.LatestVersion),
				zap.Bool("dirty", status.Dirty),
				zap.Bool("pending", status.Pending),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only report the schema version")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log lifecycle events from Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			if !cfg.KafkaEnabled() {
				return fmt.Errorf("watch needs KAFKA_BROKERS")
			}

			consumer := events.NewConsumer(events.ConsumerConfig{
				Brokers: cfg.KafkaBrokers,
				GroupID: cfg.ConsumerGroup,
				Topic:   cfg.Topic,
			}, logger)
			defer consumer.Close()

			consumer.RegisterHandler(func(_ context.Context, ev events.Event) error {
				fields := []zap.Field{
					zap.String("event_type", string(ev.Type)),
					zap.Uint("company_id", ev.CompanyID),
					zap.Time("occurred_at", ev.OccurredAt),
				}
				if ev.WorkLog != nil {
					fields = append(fields,
						zap.String("job_display_id", ev.WorkLog.JobDisplayID),
						zap.String("status", ev.WorkLog.Status))
				}
				if len(ev.WorkLogIDs) > 0 {
					fields = append(fields, zap.Uints("worklog_ids", ev.WorkLogIDs))
				}
				logger.Info("Event", fields...)
				return nil
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			consumer.Start(ctx)
			<-consumer.Done()
			return nil
		},
	}
}

func assignCmd() *cobra.Command {
	var a models.ProjectAssignment
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Make a project the active assignment of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			repo, err := gorm.NewRepository(cfg.Database())
			if err != nil {
				return err
			}
			defer repo.Close()

			a.AssignedAt = time.Now()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := repo.AssignProject(ctx, &a); err != nil {
				return err
			}
			logger.Info("Project assigned",
				zap.Uint("company_id", a.CompanyID),
				zap.Uint("user_id", a.UserID),
				zap.Uint("project_id", a.ProjectID),
				zap.String("project", a.ProjectName))
			return nil
		},
	}
	cmd.Flags().UintVar(&a.CompanyID, "company", 0, "tenant id")
	cmd.Flags().UintVar(&a.UserID, "user", 0, "user id")
	cmd.Flags().UintVar(&a.ProjectID, "project", 0, "project id")
	cmd.Flags().StringVar(&a.ProjectName, "name", "", "project name")
	for _, f := range []string{"company", "user", "project", "name"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
