package utils

import "time"

// BlacklistToken revokes a token id until its natural expiry.
func BlacklistToken(tokenID string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if tokenID == "" || ttl <= 0 {
		return
	}
	kvSet("jwt:blacklist:"+tokenID, "1", ttl)
}

// IsTokenBlacklisted reports whether a token id was revoked by logout.
func IsTokenBlacklisted(tokenID string) bool {
	if tokenID == "" {
		return false
	}
	return kvExists("jwt:blacklist:" + tokenID)
}
