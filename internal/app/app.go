// Package app assembles the decorated provider chain from configuration.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dolarprovider/internal/config"
	"dolarprovider/internal/history"
	"dolarprovider/internal/httpx"
	"dolarprovider/internal/quote"
	"dolarprovider/internal/quote/cache"
	"dolarprovider/internal/quote/cronista"
	"dolarprovider/internal/quote/ratelimit"
	"dolarprovider/internal/quote/rediscache"
)

// Stack is the provider chain plus the resources it holds.
type Stack struct {
	Provider quote.Provider
	Scraper  *cronista.Provider
	// DB is non-nil when history recording is active.
	DB *pgxpool.Pool

	http  *httpx.Client
	redis *redis.Client
}

// Close releases pooled connections.
func (s *Stack) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.http != nil {
		s.http.CloseIdle()
	}
}

// Build wires scraper -> rate limit -> history -> redis -> memory cache.
// Optional backends that cannot be reached are logged and skipped.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) *Stack {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	st := &Stack{http: hc}

	client := cronista.NewClient(
		cronista.WithBaseURL(cfg.Cronista.BaseURL),
		cronista.WithHTTPClient(hc),
		cronista.WithUserAgent(cfg.Cronista.UserAgent),
		cronista.WithRetries(cfg.Cronista.Retries, 0),
		cronista.WithLogger(logger),
	)
	st.Scraper = cronista.New(cronista.Config{
		Name: "Cronista",
		Selectors: cronista.Selectors{
			Buy:       cfg.Cronista.Selectors.Buy,
			Sell:      cfg.Cronista.Selectors.Sell,
			Variation: cfg.Cronista.Selectors.Variation,
		},
		MaxConcurrency: cfg.Cronista.MaxConcurrency,
	}, client, logger)

	var p quote.Provider = st.Scraper
	p = ratelimit.Wrap(p, cfg.Cronista.MaxRequestsPerMinute, cfg.Cronista.Burst,
		time.Duration(cfg.Cronista.MinRequestIntervalSec)*time.Second)

	if cfg.Postgres.Enabled {
		if cfg.Postgres.DSN == "" {
			logger.Warn("postgres.enabled=true but DATABASE_URL not set; skipping history")
		} else if pool, err := connectPostgres(ctx, cfg.Postgres.DSN); err != nil {
			logger.Warn("postgres unavailable; skipping history", zap.Error(err))
		} else {
			st.DB = pool
			p = &history.Recorder{P: p, DB: pool, Logger: logger.Named("history")}
		}
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable; skipping shared cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
		} else {
			st.redis = rdb
			p = &rediscache.Provider{
				P:      p,
				Store:  rdb,
				TTL:    time.Duration(cfg.Redis.TTLSeconds) * time.Second,
				Prefix: cfg.Redis.Prefix,
				Logger: logger.Named("redis"),
			}
		}
	}

	if cfg.Cronista.CacheTTLSeconds > 0 {
		p = &cache.Provider{
			P:        p,
			TTL:      time.Duration(cfg.Cronista.CacheTTLSeconds) * time.Second,
			MaxItems: cfg.Cronista.CacheMaxItems,
		}
	}
	st.Provider = p
	return st
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return history.Connect(ctx, dsn)
}
