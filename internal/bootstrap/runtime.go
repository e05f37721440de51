// Package bootstrap wires the process-wide runtime shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pulsifi/internal/cache"
	"pulsifi/internal/config"
	"pulsifi/internal/database"
	"pulsifi/internal/models"
	"pulsifi/internal/observability"
	"pulsifi/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultRootUsername = "pulsifi_root"
	defaultRootEmail    = "root@pulsifi.dev"
)

// Options control runtime initialization behavior.
type Options struct {
	ApplySchema    bool
	ServiceVersion string
}

// Runtime holds the connections and services a command runs against.
type Runtime struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Services *service.Services

	stopTracing func(context.Context) error
}

// InitRuntime connects to DB and Redis, starts tracing and makes sure the staff
// groups exist.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	observability.SetLevel(cfg.LogLevel)

	stopTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "pulsifi",
		ServiceVersion: opts.ServiceVersion,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("database connection failed: %w", err), stopTracing(ctx))
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)

	rt := &Runtime{
		DB:          db,
		Redis:       cache.GetClient(),
		Services:    service.NewServices(db, cfg.Rules()),
		stopTracing: stopTracing,
	}

	if err := rt.Services.Users.EnsureGroups(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to ensure staff groups: %w", err), rt.Shutdown(ctx))
	}
	if err := ensureDevRoot(ctx, cfg, rt.Services.Users); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to bootstrap development root user: %w", err), rt.Shutdown(ctx))
	}

	return rt, nil
}

// Shutdown releases everything InitRuntime opened and reports every failure.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var err error
	if rt.stopTracing != nil {
		err = multierr.Append(err, rt.stopTracing(ctx))
	}
	err = multierr.Append(err, cache.Close())
	if rt.DB != nil {
		sqlDB, dbErr := rt.DB.DB()
		if dbErr != nil {
			err = multierr.Append(err, dbErr)
		} else {
			err = multierr.Append(err, sqlDB.Close())
		}
	}
	return err
}

// ensureDevRoot creates or promotes the development superuser when enabled.
func ensureDevRoot(ctx context.Context, cfg *config.Config, users *service.UserService) error {
	if cfg == nil || users == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	username := strings.TrimSpace(cfg.DevRootUsername)
	if username == "" {
		username = defaultRootUsername
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = defaultRootEmail
	}

	root, err := users.GetByUsername(ctx, username)
	switch {
	case models.HasCode(err, models.CodeNotFound):
		root, err = users.CreateUser(ctx, service.CreateUserInput{
			Username:      username,
			Email:         email,
			IsSuperuser:   true,
			IsVerified:    true,
			EmailVerified: true,
		})
		if err != nil {
			return err
		}
	case err != nil:
		return err
	case !root.IsSuperuser:
		superuser := true
		if root, err = users.UpdateUser(ctx, root.ID, service.UpdateUserInput{IsSuperuser: &superuser}); err != nil {
			return err
		}
	}

	observability.Logger.InfoContext(ctx, "development root user ensured",
		slog.Uint64("user_id", uint64(root.ID)),
		slog.String("username", root.Username),
	)
	return nil
}
