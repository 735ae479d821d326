package audit

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/logging"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("PARSE_API_KEY", "llx-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("INDEX_BACKEND", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("INDEX_BACKEND", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestIsSecret(t *testing.T) {
	t.Parallel()
	for _, k := range []string{"PARSE_API_KEY", "LLAMA_CLOUD_API_KEY", "ANTHROPIC_API_KEY", "DOCQA_API_KEY"} {
		if !IsSecret(k) {
			t.Errorf("IsSecret(%q) = false, want true", k)
		}
	}
	if IsSecret("LOG_LEVEL") {
		t.Error("IsSecret(LOG_LEVEL) = true, want false")
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/docqa.yaml"); got != "/tmp/docqa.yaml" {
		t.Errorf("expected '/tmp/docqa.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && home != "/" {
		p := home + "/.docqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docqa/config.yaml" {
			t.Errorf("expected '~/.docqa/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_NeverLogsSecretValues(t *testing.T) {
	t.Setenv("PARSE_API_KEY", "llx-super-secret")
	t.Setenv("INDEX_BACKEND", "local")

	var buf bytes.Buffer
	LogCommandStart(logging.NewWithWriter(&buf, "info", "json"), "ask", "")

	out := buf.String()
	if strings.Contains(out, "llx-super-secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	if !strings.Contains(out, `"PARSE_API_KEY":"set"`) {
		t.Errorf("expected PARSE_API_KEY presence marker, got: %s", out)
	}
	if !strings.Contains(out, `"INDEX_BACKEND":"local"`) {
		t.Errorf("expected INDEX_BACKEND value, got: %s", out)
	}
}
