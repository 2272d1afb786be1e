package cart

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// CartTTL is how long an untouched cart survives in redis.
const CartTTL = 30 * 24 * time.Hour

// RedisHolder keeps each cart as a hash of product ID to quantity.
type RedisHolder struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHolder(client *redis.Client) *RedisHolder {
	return &RedisHolder{client: client, ttl: CartTTL}
}

func cartKey(owner Owner) string {
	return "cart:" + string(owner)
}

func (h *RedisHolder) Items(ctx context.Context, owner Owner) ([]Line, error) {
	raw, err := h.client.HGetAll(ctx, cartKey(owner)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	lines := make([]Line, 0, len(raw))
	for field, value := range raw {
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		lines = append(lines, Line{ProductID: uint(id), Quantity: qty})
	}
	// hash fields come back unordered
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (h *RedisHolder) Add(ctx context.Context, owner Owner, productID uint, qty int) error {
	key := cartKey(owner)
	pipe := h.client.TxPipeline()
	pipe.HIncrBy(ctx, key, strconv.FormatUint(uint64(productID), 10), int64(qty))
	pipe.Expire(ctx, key, h.ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "add cart line")
}

func (h *RedisHolder) Update(ctx context.Context, owner Owner, productID uint, qty int) error {
	if qty <= 0 {
		return h.Remove(ctx, owner, productID)
	}
	key := cartKey(owner)
	pipe := h.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatUint(uint64(productID), 10), qty)
	pipe.Expire(ctx, key, h.ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "update cart line")
}

func (h *RedisHolder) Remove(ctx context.Context, owner Owner, productID uint) error {
	err := h.client.HDel(ctx, cartKey(owner), strconv.FormatUint(uint64(productID), 10)).Err()
	return errors.Wrap(err, "remove cart line")
}

func (h *RedisHolder) Clear(ctx context.Context, owner Owner) error {
	return errors.Wrap(h.client.Del(ctx, cartKey(owner)).Err(), "clear cart")
}
