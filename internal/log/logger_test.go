package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_StampsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent(ComponentGateway).Info("hello", FieldOwner, "alice")

	entry := decode(t, &buf)
	assert.Equal(t, ComponentGateway, entry[FieldComponent])
	assert.Equal(t, "alice", entry[FieldOwner])
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"component"`)))
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ParseLevel("warn"), Format: "json", Output: &buf})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Log(context.Background(), slog.LevelError, "kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())

	logger := Discard().WithComponent(ComponentHTTP)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithOperation(OpCreate).
		WithRecord("").
		WithError(errors.New("boom")).
		WithHTTPResponse(201, 12)

	assert.Equal(t, OpCreate, fields[FieldOperation])
	assert.NotContains(t, fields, FieldRecordID)
	assert.Equal(t, "boom", fields[FieldError])
	assert.Equal(t, 201, fields[FieldStatusCode])
	assert.Len(t, fields.ToSlice(), 2*len(fields))
}
