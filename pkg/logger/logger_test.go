package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New("nonsense")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestAudit_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	log.Audit(ctx, "doctor-1", "create_availability", "availability_window", true, map[string]interface{}{"date": "2025-06-10"})

	line := decodeLine(t, &buf)
	assert.Equal(t, "Audit event", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "doctor-1", line["user_id"])
	assert.Equal(t, true, line["audit"])
	assert.Contains(t, line, "timestamp")
}

func TestAudit_FailureIsWarning(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	log.Audit(context.Background(), "patient-1", "cancel_booking", "booking", false, nil)

	line := decodeLine(t, &buf)
	assert.Equal(t, "warning", line["level"])
}

func TestHTTPRequest_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	log.HTTPRequest(context.Background(), "POST", "/api/v1/bookings", "test", "127.0.0.1", 409, 3)
	line := decodeLine(t, &buf)
	assert.Equal(t, "warning", line["level"])
	assert.EqualValues(t, 409, line["status_code"])
}
