package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trivia-show-service/internal/config"
)

const envPrefix = "TRIVIA"

var (
	port       string
	configPath string
	logLevel   string
)

// Execute runs the CLI.
func Execute() error {
	// .env is optional
	_ = godotenv.Load()
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trivia-show",
		Short:         "Live trivia show server: rooms, rounds, buzzers and scoreboards over WebSocket",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bindEnv(cmd)
			return setupLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on (env: TRIVIA_PORT)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to YAML config (env: TRIVIA_CONFIG)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error (env: TRIVIA_LOG_LEVEL)")

	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	cmd.AddCommand(NewWatchCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// bindEnv fills every flag the user did not set from its TRIVIA_* variable.
func bindEnv(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	visit := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})
	}
	visit(cmd.Flags())
	visit(cmd.InheritedFlags())
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// overrides are connection settings that flags and env take over from the
// config file.
type overrides struct {
	redisAddr     string
	postgresURL   string
	mongoURI      string
	natsURL       string
	questionsFile string
	publicURL     string
	authSecret    string
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.redisAddr, "redis-addr", "", "redis address (env: TRIVIA_REDIS_ADDR)")
	fs.StringVar(&o.postgresURL, "postgres-url", "", "postgres connection url (env: TRIVIA_POSTGRES_URL)")
	fs.StringVar(&o.mongoURI, "mongo-uri", "", "mongo connection uri (env: TRIVIA_MONGO_URI)")
	fs.StringVar(&o.natsURL, "nats-url", "", "nats url for event export (env: TRIVIA_NATS_URL)")
	fs.StringVar(&o.questionsFile, "questions-file", "", "YAML question bank (env: TRIVIA_QUESTIONS_FILE)")
	fs.StringVar(&o.publicURL, "public-url", "", "public base url used in join links (env: TRIVIA_PUBLIC_URL)")
	fs.StringVar(&o.authSecret, "auth-secret", "", "session token signing secret (env: TRIVIA_AUTH_SECRET)")
}

func (o overrides) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Redis.Addr, o.redisAddr)
	set(&cfg.Postgres.URL, o.postgresURL)
	set(&cfg.Mongo.URI, o.mongoURI)
	set(&cfg.NATS.URL, o.natsURL)
	set(&cfg.Questions.File, o.questionsFile)
	set(&cfg.Server.PublicURL, o.publicURL)
	set(&cfg.Auth.Secret, o.authSecret)
}

func loadConfig(path string, o overrides) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	o.apply(&cfg)
	return cfg, nil
}
