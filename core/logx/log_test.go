package logx_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/schmackofatz/recipes/core/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	defer logx.Configure("info")

	logx.Configure("all")
	if zerolog.GlobalLevel() != zerolog.TraceLevel {
		t.Fatalf("expected trace level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure(" WARNING ")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("off")
	if zerolog.GlobalLevel() != zerolog.Disabled {
		t.Fatalf("expected disabled level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("bogus")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestConfigureOutputFiltersBelowLevel(t *testing.T) {
	defer logx.Configure("info")

	var buf bytes.Buffer
	logx.ConfigureOutput("warn", &buf)
	logx.Log.Info().Msg("hidden")
	logx.Log.Warn().Str("session_id", "s1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "s1") {
		t.Fatalf("warn line missing: %q", out)
	}
}
