package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeTokenPrefix = "key.activeJwtMobileToken:"

// clearIfMatches deletes the marker only while it still points at the
// given token, so a logout with an old token cannot clear a newer one.
var clearIfMatches = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// ActiveTokenRepo remembers, per user, which mobile token (by jti) is the
// current one.  Issuing a token on another device replaces the marker, so
// bearer checks reject tokens from earlier admissions.
type ActiveTokenRepo struct {
	rdb *redis.Client
}

// NewActiveTokenRepo returns a repo on rdb.  A nil client disables every
// operation: Mark and Clear succeed and IsActive reports true.
func NewActiveTokenRepo(rdb *redis.Client) *ActiveTokenRepo { return &ActiveTokenRepo{rdb: rdb} }

func activeTokenKey(userID uint64) string {
	return activeTokenPrefix + strconv.FormatUint(userID, 10)
}

// Mark records jti as the user's active token.  A zero ttl keeps the
// marker until it is replaced or cleared.
func (r *ActiveTokenRepo) Mark(ctx context.Context, userID uint64, jti string, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, activeTokenKey(userID), jti, ttl).Err()
}

// IsActive reports whether jti is the user's active token.
func (r *ActiveTokenRepo) IsActive(ctx context.Context, userID uint64, jti string) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}
	cur, err := r.rdb.Get(ctx, activeTokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cur == jti, nil
}

// Clear removes the marker if it still references jti.
func (r *ActiveTokenRepo) Clear(ctx context.Context, userID uint64, jti string) error {
	if r.rdb == nil {
		return nil
	}
	return clearIfMatches.Run(ctx, r.rdb, []string{activeTokenKey(userID)}, jti).Err()
}
