package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/auth"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  jwt_secret: cli-secret\n  issuer: live-quiz-service\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--user", "t-1", "--role", "teacher", "--name", "Ada"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	verifier, _ := auth.NewJWT("cli-secret", "live-quiz-service")
	p, err := verifier.Authenticate(context.Background(), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != "t-1" || p.Role != domain.RoleTeacher || p.Name != "Ada" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("auth:\n  jwt_secret: cli-secret\n"), 0o600)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", path, "--user", "x", "--role", "admin"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected role error")
	}
}

func TestSchedule(t *testing.T) {
	if got := schedule("", "@every 1m"); got != "@every 1m" {
		t.Fatalf("default: %q", got)
	}
	if got := schedule("off", "@every 1m"); got != "" {
		t.Fatalf("off: %q", got)
	}
	if got := schedule("*/5 * * * *", "@every 1m"); got != "*/5 * * * *" {
		t.Fatalf("custom: %q", got)
	}
}
