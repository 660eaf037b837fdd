package utils

import (
	"time"

	"github.com/mojocn/base64Captcha"
)

// kvCaptchaStore implements base64Captcha.Store on the shared ephemeral store,
// so answers survive across instances when Redis is configured.
type kvCaptchaStore struct {
	ttl time.Duration
}

// NewCaptchaStore returns a captcha store whose answers expire after ttl.
func NewCaptchaStore(ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &kvCaptchaStore{ttl: ttl}
}

func (s *kvCaptchaStore) key(id string) string {
	return "captcha:" + id
}

func (s *kvCaptchaStore) Set(id string, value string) error {
	kvSet(s.key(id), value, s.ttl)
	return nil
}

func (s *kvCaptchaStore) Get(id string, clear bool) string {
	var (
		v  string
		ok bool
	)
	if clear {
		v, ok = kvTake(s.key(id))
	} else {
		v, ok = kvGet(s.key(id))
	}
	if !ok {
		return ""
	}
	return v
}

func (s *kvCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
