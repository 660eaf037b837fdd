package utils

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Short-lived keyed state (verification codes, oauth states, revoked tokens,
// abuse counters) lives in Redis when configured and in process memory otherwise.

const kvTimeout = 2 * time.Second

type memItem struct {
	val       string
	expiresAt time.Time
}

var (
	memKV   = map[string]memItem{}
	memKVMu sync.Mutex
)

const getDelScript = `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`

func kvCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), kvTimeout)
}

// memGet returns a live entry, evicting it when expired. Caller holds memKVMu.
func memGet(key string) (memItem, bool) {
	it, ok := memKV[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		delete(memKV, key)
		return memItem{}, false
	}
	return it, true
}

func kvSet(key, val string, ttl time.Duration) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := kvCtx()
		defer cancel()
		err := rc.Set(ctx, key, val, ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("kv set failed key=%s err=%v", key, err)
	}
	memKVMu.Lock()
	memKV[key] = memItem{val: val, expiresAt: time.Now().Add(ttl)}
	memKVMu.Unlock()
}

// kvTake reads and removes a key in one step.
func kvTake(key string) (string, bool) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := kvCtx()
		defer cancel()
		if v, err := rc.GetDel(ctx, key).Result(); err == nil {
			return v, true
		} else if err == redis.Nil {
			return "", false
		}
		// servers older than 6.2 lack GETDEL
		res, err := rc.Eval(ctx, getDelScript, []string{key}).Result()
		if err == nil {
			s, ok := res.(string)
			return s, ok
		}
		if err == redis.Nil {
			return "", false
		}
	}
	memKVMu.Lock()
	defer memKVMu.Unlock()
	it, ok := memGet(key)
	if ok {
		delete(memKV, key)
	}
	return it.val, ok
}

func kvGet(key string) (string, bool) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := kvCtx()
		defer cancel()
		v, err := rc.Get(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if err == redis.Nil {
			return "", false
		}
	}
	memKVMu.Lock()
	defer memKVMu.Unlock()
	it, ok := memGet(key)
	return it.val, ok
}

// kvSetNX sets key only if absent and reports whether it did.
func kvSetNX(key, val string, ttl time.Duration) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := kvCtx()
		defer cancel()
		ok, err := rc.SetNX(ctx, key, val, ttl).Result()
		if err == nil {
			return ok
		}
		// fail open
		return true
	}
	memKVMu.Lock()
	defer memKVMu.Unlock()
	if _, ok := memGet(key); ok {
		return false
	}
	memKV[key] = memItem{val: val, expiresAt: time.Now().Add(ttl)}
	return true
}

// kvIncr increments a counter, arming ttl when the counter is created.
func kvIncr(key string, ttl time.Duration) int {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := kvCtx()
		defer cancel()
		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			return 0
		}
		if n == 1 {
			_ = rc.Expire(ctx, key, ttl).Err()
		}
		return int(n)
	}
	memKVMu.Lock()
	defer memKVMu.Unlock()
	it, ok := memGet(key)
	n := 0
	if ok {
		n, _ = strconv.Atoi(it.val)
	} else {
		it.expiresAt = time.Now().Add(ttl)
	}
	n++
	it.val = strconv.Itoa(n)
	memKV[key] = it
	return n
}

func kvExists(key string) bool {
	_, ok := kvGet(key)
	return ok
}
