package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Jython1415/zolltools/pkg/logging"
)

func TestFromContext_NilContext(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(zerolog.New(&buf).With().Str("base", "yes").Logger())
	defer logging.Init(logging.Options{})

	//nolint:staticcheck // nil context is part of the contract
	logger := FromContext(nil)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"base":"yes"`) {
		t.Errorf("expected process logger, got: %s", buf.String())
	}
}

func TestFromContext_ContextWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(zerolog.New(&buf))
	defer logging.Init(logging.Options{})

	logger := FromContext(context.Background())
	logger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()

	ctx := WithLogger(context.Background(), customLogger)
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer

	//nolint:staticcheck // nil context is part of the contract
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}

	logger := FromContext(ctx)
	logger.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestChainedContexts(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithFile(ctx, "/db/pcr.sas7bdat")
	ctx = WithPhase(ctx, "validate")
	ctx = WithInt(ctx, "chunk_rows", 500)

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	for _, want := range []string{`"file":"/db/pcr.sas7bdat"`, `"phase":"validate"`, `"chunk_rows":500`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s, got: %s", want, output)
		}
	}
}

func TestChildDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := WithLogger(context.Background(), zerolog.New(&buf))
	_ = WithFile(parent, "child.sas7bdat")

	logger := FromContext(parent)
	logger.Info().Msg("parent")
	if strings.Contains(buf.String(), "child.sas7bdat") {
		t.Errorf("parent logger picked up child field: %s", buf.String())
	}
}
