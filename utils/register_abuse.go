package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/threadboard/server/config"
)

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// RegistrationCooldownTry enforces a short cooldown between attempts per IP.
func RegistrationCooldownTry(ip string) bool {
	sec := config.Get().RegisterAttemptCooldownSec
	if sec <= 0 {
		return true
	}
	return kvSetNX(regKey("cooldown", ip), "1", time.Duration(sec)*time.Second)
}

func dayKey(ip string) string {
	return regKey("succday", ip, time.Now().Format("20060102"))
}

// RegistrationDailyLimitCheck allows up to N successful registrations per day per IP.
func RegistrationDailyLimitCheck(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	v, ok := kvGet(dayKey(ip))
	if !ok {
		return true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return true
	}
	return n < limit
}

// RegistrationDailyIncrement counts a successful registration until the end of the day.
func RegistrationDailyIncrement(ip string) {
	now := time.Now()
	kvIncr(dayKey(ip), now.Truncate(24*time.Hour).Add(24*time.Hour).Sub(now))
}

// RegistrationFailRecord counts a failed attempt in the current hour and returns the count.
// Reaching the configured threshold bans the IP.
func RegistrationFailRecord(ip string) int {
	n := kvIncr(regKey("failhour", ip, time.Now().Format("2006010215")), time.Hour)
	if max := config.Get().RegisterFailedMaxPerIPPerHour; max > 0 && n >= max {
		RegistrationBan(ip)
	}
	return n
}

// RegistrationIsBanned checks temporary ban status for IP.
func RegistrationIsBanned(ip string) bool {
	return kvExists(regKey("ban", ip))
}

// RegistrationBan sets a temporary ban for IP.
func RegistrationBan(ip string) {
	minutes := config.Get().RegisterTempBanMinutes
	if minutes <= 0 {
		minutes = 60
	}
	kvSet(regKey("ban", ip), "1", time.Duration(minutes)*time.Minute)
}
