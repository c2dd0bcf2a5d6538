package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

func TestEnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("TRIVIA_REDIS_ADDR", "redis:6379")
	t.Setenv("TRIVIA_PUBLIC_URL", "https://env.example")

	var o overrides
	cmd := &cobra.Command{Use: "test"}
	o.register(cmd.Flags())
	if err := cmd.Flags().Parse([]string{"--public-url", "https://flag.example"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	bindEnv(cmd)

	if o.redisAddr != "redis:6379" {
		t.Fatalf("expected redis addr from env, got %q", o.redisAddr)
	}
	if o.publicURL != "https://flag.example" {
		t.Fatalf("explicit flags win over env, got %q", o.publicURL)
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	o := overrides{postgresURL: "postgres://x", authSecret: "s3cret"}
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), o)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://x" || cfg.Auth.Secret != "s3cret" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("empty overrides must keep the file value")
	}
}

func TestSetupLoggingRejectsUnknownLevel(t *testing.T) {
	if err := setupLogging("loud"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
	if err := setupLogging("DEBUG"); err != nil {
		t.Fatalf("levels are case-insensitive: %v", err)
	}
}

func TestReadBanksDefaultsToSamples(t *testing.T) {
	banks, err := readBanks("")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(banks[domain.QuestionMC]) == 0 || len(banks[domain.QuestionSequence]) == 0 {
		t.Fatalf("expected sample banks, got %v", banks)
	}
	if _, err := readBanks(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestDescribeView(t *testing.T) {
	now := time.Now()
	v := game.NewView("", domain.RolePresenter)
	v.Apply(domain.Event{Type: domain.EventPlayers, Payload: []domain.PlayerView{{ID: "a", Name: "Ann", Score: 20}}}, now)
	v.Apply(domain.Event{Type: domain.EventRoundStarted, Payload: domain.RoundStartedPayload{
		Round: domain.RoundView{Number: 1, Type: domain.QuestionMC, Total: 2, Remaining: 1},
	}}, now)

	line := describe(v, domain.EventRoundStarted, now)
	for _, want := range []string{"phase=round_active", "round=1/mc", "Ann:20"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
