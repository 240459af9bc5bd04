package bootstrap_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/westsidetechsolutions/meter/adapters/clock"
	"github.com/westsidetechsolutions/meter/adapters/redis"
	"github.com/westsidetechsolutions/meter/app"
	"github.com/westsidetechsolutions/meter/bootstrap"
	"github.com/westsidetechsolutions/meter/config"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meter.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newApp(t *testing.T, opts bootstrap.Options) *bootstrap.App {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewFake(baseTime)
	}
	a, err := bootstrap.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	return a
}

// issueKey subscribes userID to plan and returns a raw API key.
func issueKey(t *testing.T, a *bootstrap.App, userID, plan string) string {
	t.Helper()
	ctx := context.Background()
	end := billing.FormatPeriodEnd(baseTime.Add(10 * 24 * time.Hour))
	if _, err := a.Subscribers.Set(ctx, userID, plan, end); err != nil {
		t.Fatalf("set subscriber: %v", err)
	}
	res, err := a.Keys.Issue(ctx, app.IssueRequest{UserID: userID, Name: "bootstrap"})
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	return res.Raw
}

func meter(t *testing.T, srv *httptest.Server, raw, field string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/meter/"+field, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+raw)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("meter request: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestNew_Memory(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
metrics:
  enabled: true
auth:
  key_prefix: mem
`)
	a := newApp(t, bootstrap.Options{ConfigPath: path, Version: "1.2.3"})
	defer a.Shutdown()

	if a.Stores == nil || a.Admission == nil || a.HTTPServer == nil {
		t.Fatal("app not fully wired")
	}
	if a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %s, want 0.0.0.0:8080", a.HTTPServer.Addr)
	}

	raw := issueKey(t, a, "user-1", "price_free")
	if !strings.HasPrefix(raw, "mem_") {
		t.Errorf("raw key = %s, want mem_ prefix", raw)
	}

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp := meter(t, srv, raw, "apiCalls")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Quota-Remaining"); got != "999" {
		t.Errorf("X-Quota-Remaining = %s, want 999", got)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"meter_admissions_total", "meter_http_requests_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}

	resp, err = http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("version request: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "1.2.3") {
		t.Errorf("version body = %s", body)
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")
	a := newApp(t, bootstrap.Options{ConfigPath: path})
	defer a.Shutdown()

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNew_CustomPlanFromConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
plans:
  - id: price_tiny
    max_api_calls: 2
`)
	a := newApp(t, bootstrap.Options{ConfigPath: path})
	defer a.Shutdown()

	raw := issueKey(t, a, "user-1", "price_tiny")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := a.Admission.Admit(ctx, app.AdmitRequest{Token: raw, Field: usage.FieldAPICalls, Cost: 1})
		if err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
		if res.Denial != nil {
			t.Fatalf("Admit %d denied: %s", i, res.Denial.Code)
		}
	}

	res, err := a.Admission.Admit(ctx, app.AdmitRequest{Token: raw, Field: usage.FieldAPICalls, Cost: 1})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Denial == nil || res.Denial.Status != http.StatusTooManyRequests {
		t.Errorf("third admit = %+v, want 429", res.Denial)
	}
}

func TestNew_SQLitePersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meter.db")
	cfg := "storage:\n  driver: sqlite\n  dsn: " + dbPath + "\n"
	ctx := context.Background()

	a := newApp(t, bootstrap.Options{ConfigPath: writeConfig(t, cfg)})
	raw := issueKey(t, a, "user-1", "price_pro")
	if _, err := a.Admission.Admit(ctx, app.AdmitRequest{Token: raw, Field: usage.FieldItemsCreated, Cost: 5}); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	b := newApp(t, bootstrap.Options{ConfigPath: writeConfig(t, cfg)})
	defer b.Shutdown()

	res, err := b.Admission.Admit(ctx, app.AdmitRequest{Token: raw, Field: usage.FieldItemsCreated, Cost: 1})
	if err != nil {
		t.Fatalf("Admit after reopen: %v", err)
	}
	if res.Denial != nil {
		t.Fatalf("Admit after reopen denied: %s", res.Denial.Code)
	}
	if res.Record.ItemsCreated != 6 {
		t.Errorf("ItemsCreated = %d, want 6", res.Record.ItemsCreated)
	}

	srv := httptest.NewServer(b.HTTPServer.Handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("ready request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}
}

func TestNew_RedisUsageCounters(t *testing.T) {
	mr := miniredis.RunT(t)

	path := writeConfig(t, `
storage:
  driver: memory
  redis:
    url: redis://`+mr.Addr()+`
`)
	a := newApp(t, bootstrap.Options{ConfigPath: path})
	defer a.Shutdown()

	if _, ok := a.Stores.Usage.(*redis.UsageStore); !ok {
		t.Fatalf("usage store = %T, want *redis.UsageStore", a.Stores.Usage)
	}
	if _, ok := a.Stores.Health["redis"]; !ok {
		t.Error("redis health check not registered")
	}

	raw := issueKey(t, a, "user-1", "price_free")
	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	for i := 0; i < 3; i++ {
		if resp := meter(t, srv, raw, "apiCalls"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}

	sub, err := a.Subscribers.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get subscriber: %v", err)
	}
	rec, _, err := a.Usage.Current(context.Background(), sub)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rec.APICalls != 3 {
		t.Errorf("APICalls = %d, want 3", rec.APICalls)
	}

	mr.Close()
	resp, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("ready request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", resp.StatusCode)
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
  redis:
    url: redis://127.0.0.1:1
    dial_timeout: 200ms
`)
	_, err := bootstrap.New(context.Background(), bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err == nil {
		t.Fatal("New should fail when redis is unreachable")
	}
}

func TestNew_WarnsOnNonFreeDefaultPlan(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\ndefault_plan: price_pro\nlogging:\n  level: info\n")
	var logs bytes.Buffer
	a := newApp(t, bootstrap.Options{ConfigPath: path, LogOutput: &logs})
	defer a.Shutdown()

	if !strings.Contains(logs.String(), "instead of the free tier") {
		t.Errorf("missing default_plan warning in logs:\n%s", logs.String())
	}

	logs.Reset()
	b := newApp(t, bootstrap.Options{ConfigPath: writeConfig(t, "storage:\n  driver: memory\n"), LogOutput: &logs})
	defer b.Shutdown()
	if strings.Contains(logs.String(), "instead of the free tier") {
		t.Errorf("unexpected default_plan warning:\n%s", logs.String())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cassandra\n")
	_, err := bootstrap.New(context.Background(), bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err == nil {
		t.Fatal("New should reject unknown driver")
	}
}

func TestNew_ExplicitConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "storage:\n  driver: memory\ncache:\n  disabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a := newApp(t, bootstrap.Options{Config: cfg, ConfigPath: "/does/not/exist.yaml"})
	defer a.Shutdown()

	if a.Config != cfg {
		t.Error("explicit config not used")
	}
}

func TestStripeSyncer_Disabled(t *testing.T) {
	a := newApp(t, bootstrap.Options{ConfigPath: writeConfig(t, "storage:\n  driver: memory\n")})
	defer a.Shutdown()

	if _, err := a.StripeSyncer(); !errors.Is(err, bootstrap.ErrStripeDisabled) {
		t.Errorf("StripeSyncer error = %v, want ErrStripeDisabled", err)
	}
}

func TestStripeSyncer_Configured(t *testing.T) {
	a := newApp(t, bootstrap.Options{ConfigPath: writeConfig(t, `
storage:
  driver: memory
stripe:
  secret_key: sk_test_123
`)})
	defer a.Shutdown()

	s, err := a.StripeSyncer()
	if err != nil {
		t.Fatalf("StripeSyncer: %v", err)
	}
	if s == nil {
		t.Error("StripeSyncer returned nil")
	}
}

func TestNewLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("warn line missing: %s", out)
	}

	buf.Reset()
	logger = bootstrap.NewLogger(config.LoggingConfig{Level: "info", Format: "console"}, &buf)
	logger.Info().Msg("console line")
	if strings.Contains(buf.String(), `"message"`) || !strings.Contains(buf.String(), "console line") {
		t.Errorf("console output = %s", buf.String())
	}
}
