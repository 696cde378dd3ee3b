package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator issues human-readable grant reference codes of the form
// GR-<yymmdd>-<base36 seq><2 rand>. Codes are display identifiers only;
// uniqueness is carried by the grant's snowflake id.
type Generator interface {
	NextGrantCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextGrantCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "GR")
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := fmt.Sprintf("seq:%s:%s", prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().UTC().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	return formatCode(prefix, today, seq)
}

// LocalGenerator is a process-local fallback used in tests and single-node
// deployments without redis.
type LocalGenerator struct {
	mu   sync.Mutex
	day  string
	next int64
}

func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

func (g *LocalGenerator) NextGrantCode(ctx context.Context) (string, error) {
	today := time.Now().UTC().Format("060102")

	g.mu.Lock()
	if g.day != today {
		g.day = today
		g.next = 0
	}
	g.next++
	seq := g.next
	g.mu.Unlock()

	return formatCode("GR", today, seq)
}

func formatCode(prefix, day string, seq int64) (string, error) {
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
