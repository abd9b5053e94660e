package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/repo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// tenant-admin seeds per-tenant rows that have no public API surface:
// connection quotas and provider configurations.
//
//	./tenant-admin -redis=localhost:6379 -tenant=acme -set-limit=3
//	./tenant-admin -redis=localhost:6379 -tenant=acme -set-provider=gateway_self_hosted \
//	    -base-url=https://wa.internal.acme.io -api-token=s3cr3t
func main() {
	// CLI flags
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	tenant := flag.String("tenant", "", "tenant ID")
	setLimit := flag.Int("set-limit", -1, "set the tenant's connection limit")
	setProvider := flag.String("set-provider", "", "provider kind to configure (gateway_self_hosted | gateway_saas)")
	baseURL := flag.String("base-url", "", "provider API base URL")
	apiToken := flag.String("api-token", "", "admin API token (self-hosted)")
	accountToken := flag.String("account-token", "", "integrator account token (SaaS)")
	clientToken := flag.String("client-token", "", "account security token (SaaS)")
	inactive := flag.Bool("inactive", false, "mark the provider config inactive")
	flag.Parse()

	if *tenant == "" || (*setLimit < 0 && *setProvider == "") {
		fmt.Println("Usage: ./tenant-admin -tenant=<id> [-set-limit=<n>] [-set-provider=<kind> -base-url=... -api-token=...|-account-token=...]")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("main")

	repos := repo.NewRepository(log, *redisAddr)
	defer repos.Close()

	ctx := context.TODO()

	if *setLimit >= 0 {
		start := time.Now()
		if err := repos.Quotas.Set(ctx, *tenant, *setLimit); err != nil {
			log.Fatal("quota update failed",
				zap.String("tenant_id", *tenant),
				zap.Error(err),
			)
		}
		log.Info("quota updated",
			zap.String("tenant_id", *tenant),
			zap.Int("limit", *setLimit),
			zap.Duration("took", time.Since(start)),
		)
	}

	if *setProvider != "" {
		kind := provider.Kind(*setProvider)
		if !kind.Valid() {
			log.Fatal("unknown provider kind", zap.String("kind", *setProvider))
		}

		cfg := &provider.Config{
			TenantID:     *tenant,
			Kind:         kind,
			BaseURL:      *baseURL,
			IsActive:     !*inactive,
			APIToken:     *apiToken,
			AccountToken: *accountToken,
			ClientToken:  *clientToken,
		}
		if existing, err := repos.ProviderConfigs.Get(ctx, *tenant, kind); err == nil {
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
		}

		start := time.Now()
		if err := repos.ProviderConfigs.Upsert(ctx, cfg); err != nil {
			log.Fatal("provider config update failed",
				zap.String("tenant_id", *tenant),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
		log.Info("provider config updated",
			zap.String("tenant_id", *tenant),
			zap.String("kind", string(kind)),
			zap.Int64("config_id", cfg.ID),
			zap.Bool("active", cfg.IsActive),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
