package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthManager_AggregatesStatus(t *testing.T) {
	hm := NewHealthManager("booking", "1.0.0")
	hm.RegisterChecker("store", NewPingHealthChecker(func(context.Context) error { return nil }, false))
	hm.RegisterChecker("redis", NewPingHealthChecker(func(context.Context) error { return errors.New("connection refused") }, true))

	report := hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "redis", report.Checks[0].Name)
	assert.Equal(t, "connection refused", report.Checks[0].Message)
	assert.Equal(t, 1, report.Summary[string(HealthStatusHealthy)])
}

func TestHealthManager_HTTPHandlerUnhealthy(t *testing.T) {
	hm := NewHealthManager("booking", "1.0.0")
	hm.RegisterChecker("store", NewPingHealthChecker(func(context.Context) error { return errors.New("down") }, false))

	rec := httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Equal(t, "booking", report.Service)
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	check := NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	check = NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "gone")
}

func TestHealthManager_RegisterReplacesByName(t *testing.T) {
	hm := NewHealthManager("booking", "1.0.0")
	hm.RegisterChecker("store", NewPingHealthChecker(func(context.Context) error { return errors.New("down") }, false))
	hm.RegisterChecker("store", NewPingHealthChecker(func(context.Context) error { return nil }, false))

	report := hm.CheckHealth(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.Equal(t, "store", report.Checks[0].Name)
}
