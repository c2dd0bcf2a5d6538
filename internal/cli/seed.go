package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trivia-show-service/internal/config"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/infra/memory"
	mongoloader "trivia-show-service/internal/infra/mongo"
	"trivia-show-service/internal/infra/postgres"
	redisinfra "trivia-show-service/internal/infra/redis"
)

// NewSeedCmd loads question banks into the configured stores.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		o    overrides
		file string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load question banks into postgres and/or mongo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, o)
			if err != nil {
				return err
			}
			banks, err := readBanks(file)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, banks)
		},
	}
	o.register(cmd.Flags())
	cmd.Flags().StringVar(&file, "file", "", "YAML question bank to seed (default: built-in sample banks)")
	return cmd
}

func readBanks(path string) (map[domain.QuestionType][]domain.Question, error) {
	if path == "" {
		return memory.SampleBanks(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return memory.ParseBanks(data)
}

func runSeed(ctx context.Context, cfg config.Config, banks map[domain.QuestionType][]domain.Question) error {
	if cfg.Postgres.URL == "" && cfg.Mongo.URI == "" {
		return fmt.Errorf("nothing to seed: configure postgres or mongo")
	}

	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		n, err := postgres.Seed(ctx, db, banks)
		if err != nil {
			return err
		}
		log.Info().Int("questions", n).Msg("seeded postgres")
	}

	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		n, err := mongoloader.NewQuestionLoader(client, cfg.Mongo.Database, cfg.Mongo.Collection).Seed(ctx, banks)
		if err != nil {
			return err
		}
		log.Info().Int("questions", n).Msg("seeded mongo")
	}

	// running servers would otherwise keep serving the stale banks until
	// the cache expires
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		cache := redisinfra.NewQuestionBank(client, nil, 0)
		for typ := range banks {
			if err := cache.Invalidate(ctx, typ); err != nil {
				log.Warn().Err(err).Str("type", string(typ)).Msg("invalidate question cache")
			}
		}
	}
	return nil
}
