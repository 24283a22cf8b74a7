package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"offramp.backend/internal/config"
	"offramp.backend/pkg/jwt"
)

func TestParseArgs(t *testing.T) {
	req, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.userID == uuid.Nil || req.ttl != time.Hour {
		t.Fatalf("unexpected defaults: %+v", req)
	}

	id := uuid.New()
	req, err = parseArgs([]string{"-user-id", id.String(), "-ttl", "30m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.userID != id || req.ttl != 30*time.Minute {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := parseArgs([]string{"-user-id", "bad"}); err == nil {
		t.Fatal("expected error for invalid uuid")
	}
	if _, err := parseArgs([]string{"-ttl", "48h"}); err == nil {
		t.Fatal("expected error for ttl over 24h")
	}
}

func TestIssueToken(t *testing.T) {
	if _, err := issueToken("", tokenRequest{userID: uuid.New(), ttl: time.Minute}); err == nil {
		t.Fatal("expected error for empty secret")
	}

	id := uuid.New()
	token, err := issueToken("secret", tokenRequest{userID: id, ttl: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := jwt.NewJWTService("secret", time.Minute, time.Minute).ValidateToken(token)
	if err != nil {
		t.Fatalf("token should validate: %v", err)
	}
	if claims.UserID != id || claims.Role != jwt.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestMain_PrintsToken(t *testing.T) {
	origArgs := os.Args
	origPrintf, origLoadEnv, origLoadCfg := printfFn, loadEnvFn, loadCfgFn
	defer func() {
		os.Args = origArgs
		printfFn, loadEnvFn, loadCfgFn = origPrintf, origLoadEnv, origLoadCfg
	}()

	var out bytes.Buffer
	printfFn = func(format string, a ...any) (int, error) { return fmt.Fprintf(&out, format, a...) }
	loadEnvFn = func() error { return nil }
	loadCfgFn = func() *config.Config {
		cfg := &config.Config{}
		cfg.JWT.Secret = "secret"
		return cfg
	}
	os.Args = []string{"admin-token", "-ttl", "10m"}

	main()

	if !strings.Contains(out.String(), "ADMIN_TOKEN=") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestMain_FatalOnEmptySecret(t *testing.T) {
	origArgs := os.Args
	origFatal, origLoadEnv, origLoadCfg := fatalfFn, loadEnvFn, loadCfgFn
	defer func() {
		os.Args = origArgs
		fatalfFn, loadEnvFn, loadCfgFn = origFatal, origLoadEnv, origLoadCfg
	}()

	var fatal string
	fatalfFn = func(format string, a ...any) { fatal = fmt.Sprintf(format, a...) }
	loadEnvFn = func() error { return nil }
	loadCfgFn = func() *config.Config { return &config.Config{} }
	os.Args = []string{"admin-token"}

	main()

	if !strings.Contains(fatal, "Failed to issue admin token") {
		t.Fatalf("expected fatal message, got %q", fatal)
	}
}
