package tracing

import (
	"testing"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()
	tests := []config.TracingSettings{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
	}
	for _, s := range tests {
		h, flush, ok := Setup(s)
		if ok || h != nil || flush != nil {
			t.Errorf("Setup(%+v) should be disabled", s)
		}
	}
}

func TestSetup_Enabled(t *testing.T) {
	t.Parallel()
	h, flush, ok := Setup(config.TracingSettings{PublicKey: "pk", SecretKey: "sk", Host: "http://127.0.0.1:1"})
	if !ok || h == nil || flush == nil {
		t.Fatal("Setup with both keys should enable tracing")
	}
}

func TestInstall_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	flush := Install(config.TracingSettings{}, logging.Discard())
	flush()
}
