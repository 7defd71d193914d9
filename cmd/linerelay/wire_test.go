package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"linerelay/internal/config"
)

// fakeLINEAPI serves the three LINE endpoints the relay calls.
type fakeLINEAPI struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeLINEAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/bot/profile/"):
			json.NewEncoder(w).Encode(map[string]string{"userId": "U1", "displayName": "Alice"})
		case strings.HasSuffix(r.URL.Path, "/content"):
			w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
		case r.URL.Path == "/v2/bot/message/reply":
			var body struct {
				Messages []struct {
					Text string `json:"text"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode reply: %v", err)
			}
			f.mu.Lock()
			f.replies = append(f.replies, body.Messages[0].Text)
			f.mu.Unlock()
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}
}

func localConfig(t *testing.T, apiBase string) *config.Config {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Records.TableName = "events"
	cfg.Records.DBPath = filepath.Join(dir, "records.db")
	cfg.Objects.Backend = "filesystem"
	cfg.Objects.BucketName = "images"
	cfg.Objects.RootDir = filepath.Join(dir, "objects")
	cfg.LINE.ChannelAccessToken = "token"
	cfg.LINE.APIBase = apiBase
	cfg.LINE.DataAPIBase = apiBase
	cfg.General.Timezone = "UTC"
	cfg.Metrics.Enabled = true
	return cfg
}

func TestBuildApp_LocalBackendsEndToEnd(t *testing.T) {
	api := &fakeLINEAPI{}
	ts := httptest.NewServer(api.handler(t))
	defer ts.Close()

	cfg := localConfig(t, ts.URL)
	if needsAWS(cfg) {
		t.Fatal("sqlite and filesystem backends must not need AWS")
	}
	a, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	h := a.server.Handler()
	post := func(body string) int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/webhook", bytes.NewBufferString(body)))
		return rr.Code
	}

	if code := post(`{"events":[{"replyToken":"tok1","source":{"userId":"U1"},"message":{"type":"text","text":"hello"}}]}`); code != http.StatusOK {
		t.Fatalf("text delivery: expected 200, got %d", code)
	}
	if code := post(`{"events":[{"replyToken":"tok2","source":{"userId":"U1"},"message":{"id":"M1","type":"image"}}]}`); code != http.StatusOK {
		t.Fatalf("image delivery: expected 200, got %d", code)
	}

	if len(api.replies) != 2 || api.replies[0] != "Display name: Alice, Message: hello" {
		t.Fatalf("unexpected replies %q", api.replies)
	}
	if api.replies[1] != "Saved the image from Alice!" {
		t.Errorf("unexpected image reply %q", api.replies[1])
	}

	recs, err := a.records.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var images int
	for _, r := range recs {
		if r.ImageLocator != nil {
			images++
		}
	}
	if images != 1 {
		t.Errorf("expected one image record, got %d of %d", images, len(recs))
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Objects.RootDir, "images", "Alice", "*.png"))
	if len(matches) != 1 {
		t.Errorf("expected one stored png, got %v", matches)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "linerelay_events_total") {
		t.Error("metrics endpoint should expose event counters")
	}
}

func TestBuildApp_BadBatchMode(t *testing.T) {
	cfg := localConfig(t, "http://127.0.0.1:1")
	cfg.General.BatchMode = "some"
	if _, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for unknown batch mode")
	}
}

func TestBuildApp_ClassifierWithFilesystemRejected(t *testing.T) {
	cfg := localConfig(t, "http://127.0.0.1:1")
	cfg.Classifier.Enabled = true
	_, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "objects.backend=s3") {
		t.Fatalf("expected classifier backend error, got %v", err)
	}
}

func TestNeedsAWS(t *testing.T) {
	cfg := config.Defaults()
	if !needsAWS(cfg) {
		t.Error("default s3 object backend needs AWS")
	}
	cfg.Objects.Backend = "filesystem"
	cfg.Classifier.ModelID = "arn:model"
	if !needsAWS(cfg) {
		t.Error("an active classifier needs AWS")
	}
}

func TestRenderService(t *testing.T) {
	out := renderService(systemdTemplate, map[string]string{"EXEC": "/usr/bin/linerelay", "CONFIG": "/etc/linerelay.json"})
	if !strings.Contains(out, "ExecStart=/usr/bin/linerelay serve --config /etc/linerelay.json") {
		t.Errorf("unexpected unit:\n%s", out)
	}
}

func TestLoadConfig_MissingDefaultFileUsesEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TABLE_NAME", "env-table")
	t.Setenv("BUCKET_NAME", "env-bucket")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")
	os.Unsetenv("CLASSIFIER_ENABLED")
	configPath = ""

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.TableName != "env-table" {
		t.Errorf("expected env table, got %q", cfg.Records.TableName)
	}
}

func TestLoadConfigWith_LambdaDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TABLE_NAME", "env-table")
	t.Setenv("BUCKET_NAME", "env-bucket")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")
	t.Setenv("RECORD_BACKEND", "")
	os.Unsetenv("CLASSIFIER_ENABLED")
	configPath = ""

	cfg, err := loadConfigWith(config.LambdaDefaults())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.Backend != "dynamodb" {
		t.Errorf("lambda host should default to dynamodb, got %q", cfg.Records.Backend)
	}
	if !needsAWS(cfg) {
		t.Error("dynamodb records need AWS")
	}
}

func TestRootCommands(t *testing.T) {
	var got []string
	for _, c := range newRootCmd().Commands() {
		got = append(got, c.Name())
	}
	want := "config doctor init lambda serve service version"
	if strings.Join(got, " ") != want {
		t.Errorf("expected commands %q, got %q", want, strings.Join(got, " "))
	}
}
