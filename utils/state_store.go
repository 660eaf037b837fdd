package utils

import "time"

const oauthStatePrefix = "oauth:state:"

// SaveState records an OAuth state token; the callback must present it back.
func SaveState(state, provider string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	kvSet(oauthStatePrefix+state, provider, ttl)
}

// ConsumeState validates a state token for provider and removes it.
func ConsumeState(state, provider string) bool {
	if state == "" {
		return false
	}
	v, ok := kvTake(oauthStatePrefix + state)
	return ok && v == provider
}
