package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestValidateConfig_ValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "hub.yaml", `
server:
  addr: ":9000"
hub:
  max_connections: 500
  history_size: 50
  require_auth: true
auth:
  mode: static
  tokens:
    secret-token: alice
persistence:
  driver: file
  file:
    dir: /var/lib/roomhub
`)

	result := validateConfig(path)
	if !result.Valid {
		t.Fatalf("Expected valid config, but got errors: %v", result.Errors)
	}
	if result.File != "hub.yaml" {
		t.Errorf("Expected file name hub.yaml, got %s", result.File)
	}

	joined := strings.Join(result.Errors, "\n")
	for _, want := range []string{
		"✓ Server: :9000",
		"max connections 500",
		"history 50",
		"require auth true",
		"✓ Auth: static",
		"✓ Persistence: file",
		"timeout 1m0s",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, joined)
		}
	}
}

func TestValidateConfig_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "empty.yaml", "")

	result := validateConfig(path)
	if !result.Valid {
		t.Fatalf("Expected defaults to be valid, got errors: %v", result.Errors)
	}
	if !strings.Contains(strings.Join(result.Errors, "\n"), "max connections unlimited") {
		t.Errorf("Expected unlimited connections in summary, got %v", result.Errors)
	}
}

func TestValidateConfig_ReportsEveryRule(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "bad.yaml", `
hub:
  history_size: 0
  send_buffer: 0
  require_auth: true
auth:
  mode: none
persistence:
  driver: redis
log:
  format: xml
`)

	result := validateConfig(path)
	if result.Valid {
		t.Fatal("Expected invalid config")
	}

	want := []string{
		"hub.history_size must be positive, or -1 to disable history",
		"hub.send_buffer must be positive",
		"hub.require_auth needs auth.mode static or jwt",
		"persistence.redis.addr is required",
		`log.format "xml" is not console or json`,
	}
	if len(result.Errors) != len(want) {
		t.Fatalf("Expected %d problems, got %d: %v", len(want), len(result.Errors), result.Errors)
	}
	for i, w := range want {
		if result.Errors[i] != w {
			t.Errorf("Problem %d: expected %q, got %q", i, w, result.Errors[i])
		}
	}
}

func TestValidateConfig_UnknownKey(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "typo.yaml", "hub:\n  histroy_size: 10\n")

	result := validateConfig(path)
	if result.Valid {
		t.Fatal("Expected unknown key to be rejected")
	}
	if !strings.Contains(result.Errors[0], "histroy_size") {
		t.Errorf("Expected error to name the unknown key, got %v", result.Errors)
	}
}

func TestValidateConfig_MissingFile(t *testing.T) {
	result := validateConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if result.Valid {
		t.Fatal("Expected missing file to be invalid")
	}
	if !strings.Contains(result.Errors[0], "configuration not found") {
		t.Errorf("Unexpected error: %v", result.Errors)
	}
}

func TestValidateConfig_DeploymentChecks(t *testing.T) {
	t.Setenv("NGROK_AUTHTOKEN", "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "short jwt secret",
			body: "auth:\n  mode: jwt\n  jwt:\n    secret: short\n",
			want: "auth.jwt.secret must be at least 32 bytes",
		},
		{
			name: "empty user id",
			body: "auth:\n  mode: static\n  tokens:\n    abcdefgh: \"\"\n",
			want: "token abcd**** maps to an empty user id",
		},
		{
			name: "ngrok without token",
			body: "ngrok:\n  enabled: true\n",
			want: "Ngrok: enabled without ngrok.authtoken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "c.yaml", tt.body)
			result := validateConfig(path)
			if result.Valid {
				t.Fatal("Expected invalid config")
			}
			if !strings.Contains(strings.Join(result.Errors, "\n"), tt.want) {
				t.Errorf("Expected %q in %v", tt.want, result.Errors)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := mask("abc"); got != "****" {
		t.Errorf("Expected short token fully masked, got %s", got)
	}
	if got := mask("supersecret"); got != "supe****" {
		t.Errorf("Expected prefix kept, got %s", got)
	}
}

func TestFindConfigs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "b.yml", "")
	writeConfig(t, dir, "a.yaml", "")
	writeConfig(t, dir, "notes.txt", "")
	single := writeConfig(t, t.TempDir(), "single.conf", "")

	files, err := findConfigs([]string{dir, single})
	if err != nil {
		t.Fatalf("findConfigs failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %v", files)
	}
	for _, f := range files {
		if strings.HasSuffix(f, ".txt") {
			t.Errorf("Did not expect %s", f)
		}
	}

	if _, err := findConfigs([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestValidateAll(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "good.yaml", "server:\n  addr: \":8081\"\n")

	var buf bytes.Buffer
	if err := validateAll(&buf, []string{dir}); err != nil {
		t.Fatalf("Expected all valid, got %v", err)
	}
	if !strings.Contains(buf.String(), "✅ All configurations are valid!") {
		t.Errorf("Unexpected report:\n%s", buf.String())
	}

	writeConfig(t, dir, "bad.yaml", "auth:\n  mode: magic\n")
	buf.Reset()
	err := validateAll(&buf, []string{dir})
	if !errors.Is(err, errInvalid) {
		t.Fatalf("Expected errInvalid, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "❌ INVALID") || !strings.Contains(out, `auth.mode "magic"`) {
		t.Errorf("Unexpected report:\n%s", out)
	}

	if err := validateAll(&buf, []string{t.TempDir()}); err == nil || errors.Is(err, errInvalid) {
		t.Errorf("Expected no-files error, got %v", err)
	}
}
