package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/flowpbx/switchyard/internal/config"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "warn", LogFormat: "json"}

	logger, flush, err := Setup(cfg, &buf, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer flush()

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"component":"test"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}

	logger, flush, err := Setup(cfg, &buf, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer flush()

	logger.Debug("probe")
	if !strings.Contains(buf.String(), "msg=probe") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
