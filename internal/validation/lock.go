package validation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/sentinel"
)

// Locker grants exclusive access to one case for the length of a run.
type Locker interface {
	Lock(ctx context.Context, caseID string) (unlock func(), err error)
}

// numCaseShards spreads case ids over mutexes so unrelated cases rarely contend.
const numCaseShards = 128

// ShardedLocker serializes runs for the same case inside one process.
// Two case ids that hash to the same shard also serialize.
type ShardedLocker struct {
	shards [numCaseShards]sync.Mutex
}

func NewShardedLocker() *ShardedLocker {
	return &ShardedLocker{}
}

func (l *ShardedLocker) Lock(ctx context.Context, caseID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "case lock aborted: context cancelled")
	}
	mu := &l.shards[hashCaseID(caseID)%numCaseShards]

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return mu.Unlock, nil
	case <-ctx.Done():
		// Release the shard once the pending Lock lands.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "case lock wait exceeded")
	}
}

// hashCaseID is FNV-1a.
func hashCaseID(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

const leaseKeyPrefix = "kyc:validation:lease:"

// releaseScript deletes the lease only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a cross-process lease on a case. The TTL bounds how long a
// crashed holder blocks other workers.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLease{client: client, ttl: ttl, poll: 100 * time.Millisecond}
}

// Lock polls SET NX until the lease is free or ctx is done.
func (l *RedisLease) Lock(ctx context.Context, caseID string) (func(), error) {
	key := leaseKeyPrefix + caseID
	token, err := newLeaseToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", caseID, err)
		}
		if ok {
			return func() {
				// The run's ctx may already be cancelled; release on a fresh one.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrLeaseHeld)
		case <-ticker.C:
		}
	}
}

func newLeaseToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ChainLocker takes every lock in order and releases them in reverse.
type ChainLocker []Locker

func (c ChainLocker) Lock(ctx context.Context, caseID string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, caseID)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
