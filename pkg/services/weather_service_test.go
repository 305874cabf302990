package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negentropy-api/pkg/store"
)

func newWeatherService(t *testing.T, apiKey string) (*WeatherService, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewWeatherService(st, apiKey, 51.5074, -0.1278), st
}

func TestCurrentWeather_FetchAndCache(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Write([]byte(`{"main": {"temp": 18.3, "humidity": 72}, "weather": [{"main": "Clouds", "description": "broken clouds"}]}`))
	}))
	defer server.Close()

	svc, _ := newWeatherService(t, "test-key")
	svc.baseURL = server.URL
	ctx := context.Background()

	snapshot := svc.CurrentWeather(ctx, "tenant-1")
	require.NotNil(t, snapshot)
	assert.InDelta(t, 18.3, snapshot.Temperature, 0.0001)
	assert.InDelta(t, 72.0, snapshot.Humidity, 0.0001)
	assert.Equal(t, "clouds", snapshot.Condition)

	// 2回目はキャッシュから返り、外部APIは呼ばれない
	snapshot = svc.CurrentWeather(ctx, "tenant-1")
	assert.InDelta(t, 18.3, snapshot.Temperature, 0.0001)
	assert.Equal(t, 1, callCount)
}

func TestCurrentWeather_NoAPIKey_Fallback(t *testing.T) {
	svc, _ := newWeatherService(t, "")

	snapshot := svc.CurrentWeather(context.Background(), "tenant-1")
	require.NotNil(t, snapshot)
	assert.InDelta(t, 22.5, snapshot.Temperature, 0.0001)
	assert.InDelta(t, 60.0, snapshot.Humidity, 0.0001)
	assert.Equal(t, "sunny (mock)", snapshot.Condition)
}

func TestCurrentWeather_APIError_Fallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	svc, _ := newWeatherService(t, "bad-key")
	svc.baseURL = server.URL

	snapshot := svc.CurrentWeather(context.Background(), "tenant-1")
	require.NotNil(t, snapshot)
	assert.Equal(t, "sunny (mock)", snapshot.Condition)
}

func TestCurrentWeather_TenantIsolation(t *testing.T) {
	svc, st := newWeatherService(t, "")
	ctx := context.Background()

	svc.CurrentWeather(ctx, "tenant-1")

	// 別テナントのキャッシュには影響しない
	cached, err := st.GetWeather(ctx, "tenant-2", svc.now().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Nil(t, cached)
}
