package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GenerateVerificationCode returns n random decimal digits, zero padded.
func GenerateVerificationCode(n int) string {
	if n <= 0 || n > 18 {
		n = 6
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		Sugar.Errorf("crypto/rand unavailable: %v", err)
		v = big.NewInt(time.Now().UnixNano())
		v.Mod(v, limit)
	}
	return fmt.Sprintf("%0*d", n, v.Int64())
}

func codeKey(email string) string {
	return "verify:email:" + strings.ToLower(email)
}

// SaveCode stores the email verification code for ttl, replacing any previous one.
func SaveCode(email, code string, ttl time.Duration) {
	kvSet(codeKey(email), code, ttl)
}

// VerifyAndConsumeCode reports whether code matches. A stored code is single-use either way.
func VerifyAndConsumeCode(email, code string) bool {
	if code == "" {
		return false
	}
	v, ok := kvTake(codeKey(email))
	return ok && v == code
}

// EmailCooldownTrySet returns false while a previous mail to email is still cooling down.
func EmailCooldownTrySet(email string, cooldown time.Duration) bool {
	return kvSetNX("cooldown:email:"+strings.ToLower(email), "1", cooldown)
}
