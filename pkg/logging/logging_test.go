package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLevels(t *testing.T) {
	defer Init(Options{})

	tests := []struct {
		name      string
		opts      Options
		wantDebug bool
	}{
		{"json info", Options{}, false},
		{"json debug", Options{Debug: true}, true},
		{"human info", Options{Human: true}, false},
		{"human debug", Options{Debug: true, Human: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Out = &buf
			Init(tt.opts)

			log := L()
			log.Info().Msg("info line")
			log.Debug().Msg("debug line")

			out := buf.String()
			if !strings.Contains(out, "info line") {
				t.Errorf("missing info line: %q", out)
			}
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug line present = %v, want %v: %q", got, tt.wantDebug, out)
			}
			if got := strings.HasPrefix(out, "{"); got == tt.opts.Human {
				t.Errorf("human=%v but JSON output = %v: %q", tt.opts.Human, got, out)
			}
		})
	}
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(Options{})

	log := WithPhase("validate")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"validate"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())
	defer Init(Options{})

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestPrettyMode(t *testing.T) {
	defer Init(Options{})

	Init(Options{Human: true, Out: &bytes.Buffer{}})
	if !IsPrettyMode() {
		t.Error("human output should enable pretty mode")
	}
	Init(Options{Out: &bytes.Buffer{}})
	if IsPrettyMode() {
		t.Error("json output should disable pretty mode")
	}
}
