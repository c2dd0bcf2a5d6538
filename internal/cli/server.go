package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/auth"
	"trivia-show-service/internal/config"
	"trivia-show-service/internal/infra/memory"
	mongoloader "trivia-show-service/internal/infra/mongo"
	natssink "trivia-show-service/internal/infra/nats"
	pgloader "trivia-show-service/internal/infra/postgres"
	redisinfra "trivia-show-service/internal/infra/redis"
	transport "trivia-show-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the trivia show server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, o)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, *port)
		},
	}
	o.register(cmd.Flags())
	return cmd
}

// backends holds the optional infrastructure clients opened for a run.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	mongo *mongo.Client
	close []func()
}

func (b *backends) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.close = append(b.close, func() { _ = b.redis.Close() })
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		b.close = append(b.close, pool.Close)
	}
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.mongo = client
		b.close = append(b.close, func() { _ = client.Disconnect(context.Background()) })
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// loaders are asked in order; the built-in sample bank is the last resort
	var chain memory.ChainLoader
	if b.pool != nil {
		chain = append(chain, pgloader.NewQuestionLoader(b.pool))
	}
	if b.mongo != nil {
		chain = append(chain, mongoloader.NewQuestionLoader(b.mongo, cfg.Mongo.Database, cfg.Mongo.Collection))
	}
	if cfg.Questions.File != "" {
		chain = append(chain, memory.NewFileQuestionLoader(cfg.Questions.File))
	}
	chain = append(chain, memory.NewSampleQuestionLoader())

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		bank  app.QuestionBank
		rooms app.RoomRepository
		sinks []app.EventSink
	)
	if b.redis != nil {
		bank = redisinfra.NewQuestionBank(b.redis, chain, questionTTL)
		store := redisinfra.NewRoomStore(b.redis, redisTTL, cfg.Show.CodeLength, cfg.Show.CodeAttempts)
		rooms = store
		sinks = append(sinks, store, redisinfra.NewLeaderboardSink(b.redis, redisTTL))
	} else {
		bank = memory.NewQuestionBank(chain, questionTTL)
		rooms = memory.NewRoomStore(cfg.Show.CodeLength, cfg.Show.CodeAttempts)
	}
	if cfg.NATS.URL != "" {
		nc, err := natssink.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, natssink.NewPublisher(nc, cfg.NATS.SubjectPrefix))
	}

	service := app.NewShowService(rooms, bank, app.Options{
		Settings:     cfg.Settings(),
		TickInterval: config.TTLDuration(cfg.Show.TickInterval, time.Second),
		IdleGrace:    config.TTLDuration(cfg.Show.IdleGrace, 10*time.Minute),
		Sinks:        sinks,
	})
	tokens := auth.NewIssuer(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour), nil)
	wsHandler := transport.NewWSHandler(service, tokens, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, wsHandler, transport.RouterConfig{
			PublicURL:      cfg.Server.PublicURL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Int("sinks", len(sinks)).Msg("starting trivia show server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
