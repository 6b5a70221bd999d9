package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewTagsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "socialpulse", "production")
	logger.Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json output: %v (%s)", err, buf.String())
	}
	if line["service"] != "socialpulse" || line["env"] != "production" {
		t.Fatalf("missing service/env attrs: %v", line)
	}
}

func TestNewUsesTextInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "bogus", "socialpulse", "development").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, "info", "socialpulse", "production")
	ctx := WithRequestID(context.Background(), "req-42")

	FromContext(ctx, base).Info("tagged")
	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Fatalf("expected request id in %q", buf.String())
	}

	if FromContext(context.Background(), base) != base {
		t.Fatalf("expected logger unchanged without request id")
	}
}
