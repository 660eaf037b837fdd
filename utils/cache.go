package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultCacheTTL = 10 * time.Minute

// Cache key namespaces. Every write path invalidates its namespace by prefix.
const (
	CachePrefixPosts = "cache:posts:"
	CachePrefixStats = "cache:stats:"
)

// RepliesCachePrefix scopes cached reply pages of one post.
func RepliesCachePrefix(postID uint) string {
	return fmt.Sprintf("cache:replies:%d:", postID)
}

// RepliesCacheKey names one cached page of a post's reply tree.
func RepliesCacheKey(postID uint, page, size int, order string) string {
	return fmt.Sprintf("%sp%d:s%d:%s", RepliesCachePrefix(postID), page, size, order)
}

// CacheGetJSON loads key into v. A miss, a disabled cache or a decode failure all report false.
func CacheGetJSON(key string, v interface{}) bool {
	rc := GetRedis()
	if rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache miss key=%s err=%v", key, err)
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// CacheSetJSON marshals v and stores it, defaulting ttl when zero.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	iter := rc.Scan(ctx, 0, prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		Sugar.Warnf("cache scan failed prefix=%s err=%v", prefix, err)
	}
	if len(keys) == 0 {
		return
	}
	if err := rc.Unlink(ctx, keys...).Err(); err != nil {
		Sugar.Warnf("cache invalidate failed prefix=%s err=%v", prefix, err)
	}
}
