package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ossrs/go-dcsctp/logger"
)

type assocContext string

func (v assocContext) Cid() string {
	return string(v)
}

func TestPrintlnWithoutContext(t *testing.T) {
	var b bytes.Buffer
	logger.Switch(&b)
	defer logger.Close()

	logger.Trace.Println(nil, "hello")
	if !strings.Contains(b.String(), "hello") {
		t.Fatalf("expected log line to contain message, got %q", b.String())
	}
}

func TestPrintlnWithAssociationContext(t *testing.T) {
	var b bytes.Buffer
	logger.Switch(&b)
	defer logger.Close()

	ctx := assocContext("abc123")
	logger.Warn.Println(ctx, "sack gap detected")

	line := b.String()
	if !strings.Contains(line, "abc123") {
		t.Fatalf("expected cid in log line, got %q", line)
	}
	if !strings.Contains(line, "sack gap detected") {
		t.Fatalf("expected message in log line, got %q", line)
	}
}

func TestDebugDiscardedByDefault(t *testing.T) {
	var b bytes.Buffer
	logger.Switch(&b)
	defer logger.Close()

	logger.Debug.Println(nil, "should not appear")
	if b.Len() != 0 {
		t.Fatalf("expected debug level to stay discarded, got %q", b.String())
	}

	logger.EnableDebug(&b)
	logger.Debug.Println(nil, "now visible")
	if !strings.Contains(b.String(), "now visible") {
		t.Fatalf("expected debug line after EnableDebug, got %q", b.String())
	}
}
