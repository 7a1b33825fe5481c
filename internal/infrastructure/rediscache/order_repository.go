// Package rediscache holds the Redis-backed order cache and rate limiter.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
)

const DefaultTTL = 5 * time.Minute

// storeIfNewer writes ARGV[1] unless the cached order already carries a
// version at or above ARGV[2], so a slow read-through cannot put back a copy
// older than the one a concurrent Update wrote.
var storeIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' then
    local v = tonumber(doc['Version'])
    if v and v >= tonumber(ARGV[2]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// OrderRepository caches order lookups by number in front of the primary
// repository. Update writes the new version through, and every cache write
// is fenced on Order.Version, so reads stay consistent as long as all writers
// share the decorator. Redis failures fall through to the primary store.
type OrderRepository struct {
	primary domain.Repository
	client  redis.UniversalClient
	ttl     time.Duration
	prefix  string
	log     observability.Logger
}

func NewOrderRepository(primary domain.Repository, client redis.UniversalClient, ttl time.Duration, prefix string, logger observability.Logger) *OrderRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "guestshop"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &OrderRepository{
		primary: primary,
		client:  client,
		ttl:     ttl,
		prefix:  prefix,
		log:     logger.With(observability.F("component", "order_cache")),
	}
}

func (r *OrderRepository) key(number string) string {
	return r.prefix + ":order:" + number
}

func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	logger := logctx.FromOr(ctx, r.log)

	raw, err := r.client.Get(ctx, r.key(number)).Bytes()
	switch {
	case err == nil:
		var o domain.Order
		if jerr := json.Unmarshal(raw, &o); jerr == nil {
			return &o, nil
		}
		logger.Warn("order_cache_corrupt", observability.F("order_number", number))
	case !errors.Is(err, redis.Nil):
		logger.Warn("order_cache_get_failed",
			observability.F("order_number", number),
			observability.Err(err),
		)
	}

	o, err := r.primary.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	_ = r.store(ctx, o)
	return o, nil
}

func (r *OrderRepository) store(ctx context.Context, o *domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	err = storeIfNewer.Run(ctx, r.client, []string{r.key(o.Number)}, data, o.Version, r.ttl.Milliseconds()).Err()
	if err != nil {
		logctx.FromOr(ctx, r.log).Warn("order_cache_set_failed",
			observability.F("order_number", o.Number),
			observability.Err(err),
		)
	}
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.primary.FindByID(ctx, id)
}

func (r *OrderRepository) FindBySessionID(ctx context.Context, provider, sessionID string) (*domain.Order, error) {
	return r.primary.FindBySessionID(ctx, provider, sessionID)
}

func (r *OrderRepository) List(ctx context.Context, page domain.Page) (domain.PageResult, error) {
	return r.primary.List(ctx, page)
}

// Update writes the persisted order through to the cache. A failed write
// leaves the cache alone: the winning writer has already stored its newer
// version. If the write-through fails the entry is dropped instead.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if err := r.primary.Update(ctx, o); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if r.store(ctx, o) == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.key(o.Number)).Err(); err != nil {
		logctx.FromOr(ctx, r.log).Warn("order_cache_invalidate_failed",
			observability.F("order_number", o.Number),
			observability.Err(err),
		)
	}
	return nil
}

var _ domain.Repository = (*OrderRepository)(nil)
