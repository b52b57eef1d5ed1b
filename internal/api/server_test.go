package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sonoscan/sonoscan/internal/buildinfo"
	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("github.com/sonoscan/sonoscan/internal/logger.(*BufferedFileWriter).flushLoop"),
	)
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = datastore.MemoryPath
	s.Model.Path = filepath.Join(dir, "model.bin")
	s.Model.ImageSize = 32
	s.Model.Classes = conf.DefaultClasses
	s.GradCAM = conf.GradCAMSettings{TargetLayer: "layer4", Alpha: 0.4}
	s.Reports.Dir = filepath.Join(dir, "reports")
	s.Security.SessionSecret = "0123456789abcdef0123456789abcdef"
	s.Security.TokenTTL = time.Hour
	s.WebServer.Port = "0"
	s.WebServer.MaxUploadSize = 2048
	return s
}

func newTestServer(t *testing.T, settings *conf.Settings) (*Server, *observability.Metrics) {
	t.Helper()
	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	loader := classifier.NewLoader(classifier.LoaderConfig{
		WeightsPath:    settings.Model.Path,
		ClassNamesPath: settings.ClassNamesPath(),
		Fallback:       settings.Model.Classes,
		ImageSize:      settings.Model.ImageSize,
		Seed:           1,
	})

	s, err := New(settings,
		WithDataStore(store),
		WithLoader(loader),
		WithMetrics(m),
		WithBuildInfo(buildinfo.NewContext("1.2.3", "2026-01-01")),
	)
	require.NoError(t, err)
	t.Cleanup(s.APIController().Shutdown)
	return s, m
}

func serve(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerRoutes(t *testing.T) {
	s, _ := newTestServer(t, testSettings(t))

	rec := serve(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(s, http.MethodGet, "/api/v2/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServerBodyLimit(t *testing.T) {
	s, _ := newTestServer(t, testSettings(t))

	rec := serve(s, http.MethodPost, "/api/v2/auth/password-strength", strings.Repeat("x", 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(testSettings(t))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestConfigFromSettings(t *testing.T) {
	s := &conf.Settings{}
	cfg := ConfigFromSettings(s)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "16384K", cfg.BodyLimit())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())

	s.WebServer.Port = "9000"
	s.WebServer.MaxUploadSize = 1500
	s.Debug = true
	s.WebServer.AllowedOrigins = []string{"https://clinic.example"}
	cfg = ConfigFromSettings(s)
	assert.Equal(t, ":9000", cfg.Address())
	assert.Equal(t, []string{"https://clinic.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "2K", cfg.BodyLimit())
	assert.True(t, cfg.Debug)

	cfg.Port = ""
	assert.True(t, errors.IsValidation(cfg.Validate()))
}
