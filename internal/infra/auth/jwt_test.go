package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"live-quiz-service/internal/domain"
)

func TestJWTRoundTrip(t *testing.T) {
	j, err := NewJWT("s3cret", "live-quiz")
	if err != nil {
		t.Fatalf("new jwt: %v", err)
	}
	want := domain.Principal{UserID: "u-1", Role: domain.RoleTeacher, Name: "Ada"}
	token, err := j.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := j.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestJWTRejectsBadTokens(t *testing.T) {
	j, _ := NewJWT("s3cret", "live-quiz")
	other, _ := NewJWT("other", "live-quiz")
	student := domain.Principal{UserID: "u-2", Role: domain.RoleStudent}

	forged, _ := other.Issue(student, time.Hour)
	expired, _ := j.Issue(student, -time.Minute)
	noRole, _ := j.Issue(domain.Principal{UserID: "u-3"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: domain.RoleTeacher}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not-a-token",
		"forged":  forged,
		"expired": expired,
		"no role": noRole,
		"none":    none,
	} {
		if _, err := j.Authenticate(context.Background(), token); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("%s: expected unauthenticated, got %v", name, err)
		}
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	if _, err := NewJWT("", ""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
