package pricefeed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/domain"
)

// Hash fields read by RedisSource.
const (
	RedisFieldPrice     = "price"
	RedisFieldDecimals  = "decimals"
	RedisFieldUpdatedAt = "updated_at"
)

// RedisSource reads the price from a Redis hash that an external publisher
// keeps current. updated_at holds unix seconds.
type RedisSource struct {
	client redis.Cmdable
	key    string
}

// NewRedisSource creates a source reading the hash at key.
func NewRedisSource(client redis.Cmdable, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

// LatestPrice reads the hash and decodes the quote.
func (s *RedisSource) LatestPrice(ctx context.Context) (domain.PriceQuote, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: redis %s: %w", domain.ErrOracleUnavailable, s.key, err)
	}
	if len(fields) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("%w: redis key %s not found", domain.ErrOracleUnavailable, s.key)
	}

	price, err := decimal.NewFromString(fields[RedisFieldPrice])
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: redis %s price: %w", domain.ErrOracleUnavailable, s.key, err)
	}

	decimals, err := strconv.ParseInt(fields[RedisFieldDecimals], 10, 32)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: redis %s decimals: %w", domain.ErrOracleUnavailable, s.key, err)
	}
	d := int32(decimals)

	msg := quoteMessage{Price: price, Decimals: &d}

	if raw, ok := fields[RedisFieldUpdatedAt]; ok && raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("%w: redis %s updated_at: %w", domain.ErrOracleUnavailable, s.key, err)
		}
		updatedAt := time.Unix(sec, 0)
		msg.UpdatedAt = &updatedAt
	}

	return msg.quote()
}
