package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/httpapi"
)

const storePrefix = "registrar:limiter"

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          storePrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewRedisStore connects to redisURL and checks the connection before
// returning the store.
func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   storePrefix,
		MaxRetry: limiter.DefaultMaxRetry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "redis limiter store")
	}
	return store, nil
}

// NewStore picks the backend named by opts.Storage. A Redis store that cannot
// be reached falls back to memory.
func NewStore(opts configuration.RateLimitOptions, log *logrus.Entry) limiter.Store {
	if opts.Storage != "redis" {
		return NewMemoryStore()
	}
	store, err := NewRedisStore(opts.RedisURL)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
		}
		return NewMemoryStore()
	}
	return store
}

// NewRegistryLimiter builds the limiter shared by all outbound registry
// calls, or nil when rate limiting is disabled.
func NewRegistryLimiter(opts configuration.RateLimitOptions, log *logrus.Entry) *limiter.Limiter {
	if !opts.Enabled || opts.GlobalRPS == 0 {
		return nil
	}
	return limiter.New(NewStore(opts, log), limiter.Rate{
		Period: time.Second,
		Limit:  int64(opts.GlobalRPS),
	})
}

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	KeyFunc           func(r *http.Request) string
}

// RateLimit limits inbound requests per client IP unless KeyFunc says otherwise.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.Period == 0 {
		cfg.Period = time.Second
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	lim := limiter.New(cfg.Store, limiter.Rate{
		Period: cfg.Period,
		Limit:  int64(cfg.RequestsPerPeriod),
	})
	mw := stdlib.NewMiddleware(lim,
		stdlib.WithKeyGetter(cfg.KeyFunc),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
	return mw.Handler
}

func IPRateLimitPeriod(requests int, period time.Duration) mux.MiddlewareFunc {
	return RateLimit(RateLimitConfig{RequestsPerPeriod: requests, Period: period})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
