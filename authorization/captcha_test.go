package authorization

import (
	"strings"
	"testing"
	"time"
)

func TestCaptchaIssueAndVerify(t *testing.T) {
	store := NewCaptchaStore(time.Minute, 4)

	challenge := store.Issue()
	if challenge.ID == "" {
		t.Fatalf("no challenge issued")
	}
	if !strings.HasPrefix(challenge.ImageBase64, "data:image/") {
		t.Fatalf("image is not a data URL: %.40s", challenge.ImageBase64)
	}
	if challenge.TTL != time.Minute {
		t.Fatalf("ttl = %v", challenge.TTL)
	}

	if store.Verify(challenge.ID, "") {
		t.Fatalf("blank answer accepted")
	}
	if store.Verify("", "1234") {
		t.Fatalf("blank id accepted")
	}
	if store.Verify(challenge.ID, "not-digits") {
		t.Fatalf("wrong answer accepted")
	}
	// The attempt above consumed the challenge.
	if store.Verify(challenge.ID, "not-digits") != false {
		t.Fatalf("consumed challenge verified")
	}
}

func TestCaptchaDisabledStoreAcceptsEverything(t *testing.T) {
	var store *CaptchaStore
	if !store.Verify("any", "thing") {
		t.Fatalf("nil store must accept all answers")
	}
	if challenge := store.Issue(); challenge.ID != "" {
		t.Fatalf("nil store issued a challenge: %+v", challenge)
	}
}

func TestNewCaptchaStoreFromEnv(t *testing.T) {
	t.Setenv("CAPTCHA_DISABLED", "true")
	if store := NewCaptchaStoreFromEnv(); store != nil {
		t.Fatalf("expected nil store when disabled")
	}

	t.Setenv("CAPTCHA_DISABLED", "")
	t.Setenv("CAPTCHA_TTL_SECONDS", "90")
	store := NewCaptchaStoreFromEnv()
	if store == nil {
		t.Fatalf("expected store")
	}
	if store.ttl != 90*time.Second {
		t.Fatalf("ttl = %v", store.ttl)
	}
}
