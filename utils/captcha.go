package utils

import (
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 5 * time.Minute

// Captcha is a challenge the client renders as an image and answers with its id.
type Captcha struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

var (
	captchaStore  = NewCaptchaStore(captchaTTL)
	captchaDriver = base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
)

// NewCaptcha issues a five digit challenge. The image is a data URI.
func NewCaptcha() (Captcha, error) {
	id, b64, _, err := base64Captcha.NewCaptcha(captchaDriver, captchaStore).Generate()
	return Captcha{ID: id, Image: b64}, err
}

// VerifyCaptcha checks answer and burns the challenge whatever the outcome.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}
