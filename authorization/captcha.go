package authorization

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mojocn/base64Captcha"
)

const (
	defaultCaptchaTTL    = 3 * time.Minute
	defaultCaptchaDigits = 5
)

// CaptchaChallenge is what the register and login forms render: a data-URL
// image plus the id the client echoes back with its answer.
type CaptchaChallenge struct {
	ID          string
	ImageBase64 string
	ExpiresAt   time.Time
	TTL         time.Duration
}

// CaptchaStore issues digit captchas for the register and login endpoints
// and verifies the answers. A nil store means the gate is disabled: Verify
// accepts everything, which is what the handlers rely on.
type CaptchaStore struct {
	captcha *base64Captcha.Captcha
	ttl     time.Duration
}

// NewCaptchaStore builds an in-memory digit captcha store.
func NewCaptchaStore(ttl time.Duration, digits int) *CaptchaStore {
	if ttl <= 0 {
		ttl = defaultCaptchaTTL
	}
	if digits <= 0 {
		digits = defaultCaptchaDigits
	}
	driver := base64Captcha.NewDriverDigit(60, 160, digits, 0.7, 80)
	store := base64Captcha.NewMemoryStore(2048, ttl)
	return &CaptchaStore{captcha: base64Captcha.NewCaptcha(driver, store), ttl: ttl}
}

// NewCaptchaStoreFromEnv reads CAPTCHA_DISABLED, CAPTCHA_TTL_SECONDS and
// CAPTCHA_DIGITS. Returns nil when the gate is disabled.
func NewCaptchaStoreFromEnv() *CaptchaStore {
	if envBool("CAPTCHA_DISABLED") {
		log.Println("authorization: captcha gate disabled")
		return nil
	}
	ttl := defaultCaptchaTTL
	if seconds := envInt("CAPTCHA_TTL_SECONDS"); seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	return NewCaptchaStore(ttl, envInt("CAPTCHA_DIGITS"))
}

// Issue generates a fresh challenge. Generation failures come back as a zero
// challenge; the handler turns that into a 500.
func (s *CaptchaStore) Issue() CaptchaChallenge {
	if s == nil {
		return CaptchaChallenge{}
	}

	id, image, _, err := s.captcha.Generate()
	if err != nil {
		log.Printf("authorization: generate captcha: %v", err)
		return CaptchaChallenge{}
	}

	imageData := strings.TrimSpace(image)
	if imageData != "" && !strings.HasPrefix(imageData, "data:") {
		imageData = "data:image/png;base64," + imageData
	}

	return CaptchaChallenge{
		ID:          id,
		ImageBase64: imageData,
		ExpiresAt:   time.Now().UTC().Add(s.ttl),
		TTL:         s.ttl,
	}
}

// Verify consumes the challenge: a captcha id is good for one attempt only,
// right or wrong.
func (s *CaptchaStore) Verify(id, answer string) bool {
	if s == nil {
		return true
	}

	id = strings.TrimSpace(id)
	answer = strings.TrimSpace(answer)
	if id == "" || answer == "" {
		return false
	}
	return s.captcha.Verify(id, answer, true)
}

func envBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

func envInt(key string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}
