package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Records.TableName = "line-events"
	cfg.Objects.BucketName = "line-images"
	cfg.LINE.ChannelAccessToken = "token-0123456789"
	return cfg
}

// clearEnv blanks the variables ApplyEnv reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TABLE_NAME", "BUCKET_NAME", "CHANNEL_ACCESS_TOKEN", "CHANNEL_SECRET",
		"CLASSIFIER_MODEL", "RECORD_BACKEND", "OBJECT_BACKEND",
		"LOG_LEVEL", "TIMEZONE", "BATCH_MODE", "AWS_REGION",
	} {
		t.Setenv(k, "")
	}
	os.Unsetenv("CLASSIFIER_ENABLED")
	os.Unsetenv("PORT")
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_DefaultsMissingRequired(t *testing.T) {
	err := Validate(Defaults())
	if err == nil {
		t.Fatal("defaults lack table, bucket and token and must not validate")
	}
	for _, want := range []string{"records.tableName", "objects.bucketName", "line.channelAccessToken"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_InvalidBatchMode(t *testing.T) {
	cfg := validConfig()
	cfg.General.BatchMode = "some"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for batchMode=some")
	}
}

func TestValidate_InvalidBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Records.Backend = "mongo"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for records.backend=mongo")
	}

	cfg = validConfig()
	cfg.Objects.Backend = "gcs"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for objects.backend=gcs")
	}
}

func TestValidate_FilesystemNeedsRootDir(t *testing.T) {
	cfg := validConfig()
	cfg.Objects.Backend = "filesystem"
	cfg.Objects.RootDir = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for filesystem backend without rootDir")
	}
}

func TestValidate_ClassifierNeedsS3(t *testing.T) {
	cfg := validConfig()
	cfg.Objects.Backend = "filesystem"
	cfg.Objects.RootDir = t.TempDir()
	cfg.Classifier.Enabled = true
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "classifier requires objects.backend=s3") {
		t.Fatalf("expected classifier backend error, got %v", err)
	}

	cfg.Classifier.Enabled = false
	cfg.Classifier.ModelID = "arn:aws:rekognition:model"
	if err := Validate(cfg); err == nil {
		t.Fatal("a custom model also needs the s3 backend")
	}

	cfg.Objects.Backend = "s3"
	if err := Validate(cfg); err != nil {
		t.Fatalf("s3 with a classifier should validate: %v", err)
	}
}

func TestValidate_UnknownTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.General.Timezone = "Mars/Olympus_Mons"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidate_PortBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 70000")
	}
}

func TestGeneralLocation(t *testing.T) {
	loc, err := GeneralConfig{Timezone: "Asia/Tokyo"}.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "Asia/Tokyo" {
		t.Errorf("expected Asia/Tokyo, got %s", loc)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	original := validConfig()
	original.General.BatchMode = "all"
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.BatchMode != "all" {
		t.Fatalf("expected batchMode all, got %q", loaded.General.BatchMode)
	}
	if loaded.Records.TableName != "line-events" {
		t.Fatalf("expected table line-events, got %q", loaded.Records.TableName)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
records:
  backend: dynamodb
  tableName: events
objects:
  bucketName: images
line:
  channelAccessToken: abc
classifier:
  modelId: arn:aws:rekognition:model
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.Backend != "dynamodb" || cfg.Objects.BucketName != "images" {
		t.Fatalf("yaml not applied: %+v", cfg.Records)
	}
	if !cfg.Classifier.Active() {
		t.Fatal("a model id should activate the classifier")
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Path != "/webhook" {
		t.Errorf("expected default server path, got %q", cfg.Server.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLE_NAME", "env-table")
	t.Setenv("BUCKET_NAME", "env-bucket")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")
	t.Setenv("CLASSIFIER_ENABLED", "true")
	t.Setenv("BATCH_MODE", "all")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.TableName != "env-table" || cfg.Objects.BucketName != "env-bucket" {
		t.Fatalf("env not applied: %+v %+v", cfg.Records, cfg.Objects)
	}
	if cfg.LINE.ChannelAccessToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.LINE.ChannelAccessToken)
	}
	if !cfg.Classifier.Enabled {
		t.Fatal("expected classifier enabled from env")
	}
	if cfg.General.BatchMode != "all" {
		t.Fatalf("expected batch mode all, got %q", cfg.General.BatchMode)
	}
}

func TestLoadWithDefaults_LambdaUsesDynamo(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLE_NAME", "env-table")
	t.Setenv("BUCKET_NAME", "env-bucket")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")

	cfg, err := LoadWithDefaults("", LambdaDefaults())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.Backend != "dynamodb" {
		t.Errorf("expected dynamodb, got %q", cfg.Records.Backend)
	}

	t.Setenv("RECORD_BACKEND", "sqlite")
	if _, err := LoadWithDefaults("", LambdaDefaults()); err == nil {
		t.Error("explicit sqlite without a dbPath should fail validation")
	}
}

func TestLoadWithDefaults_FileBackendWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"records":{"backend":"sqlite","tableName":"events","dbPath":"/tmp/records.db"},
		"objects":{"bucketName":"images"},"line":{"channelAccessToken":"abc"}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithDefaults(path, LambdaDefaults())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.Backend != "sqlite" {
		t.Errorf("file backend should win, got %q", cfg.Records.Backend)
	}
}

func TestLoad_EnvOnlyMissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLE_NAME", "env-table")

	if _, err := Load(""); err == nil {
		t.Fatal("missing bucket and token must be fatal")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, validConfig()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TABLE_NAME", "override")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.TableName != "override" {
		t.Fatalf("env should win over file, got %q", cfg.Records.TableName)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LR_TEST_TOKEN", "secret")
	os.Unsetenv("LR_TEST_MISSING")

	cases := map[string]string{
		`"${LR_TEST_TOKEN}"`:            `"secret"`,
		`"${LR_TEST_MISSING:-fallback}"`: `"fallback"`,
		`"${LR_TEST_MISSING}"`:           `"${LR_TEST_MISSING}"`,
		`"plain"`:                        `"plain"`,
	}
	for in, want := range cases {
		if got := ExpandEnvVars(in); got != want {
			t.Errorf("ExpandEnvVars(%s) = %s, want %s", in, got, want)
		}
	}
}

// --- Accessor ---

func TestGetByPath_ValidPath(t *testing.T) {
	val, err := GetByPath(validConfig(), "records.tableName")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "line-events" {
		t.Fatalf("expected 'line-events', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(validConfig(), "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	if _, err := GetByPath(validConfig(), "records.tableName.deeper"); err == nil {
		t.Fatal("expected error traversing into a string")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.LINE.ChannelSecret = "short"

	s := Sanitize(cfg)
	if s.LINE.ChannelAccessToken != "toke****6789" {
		t.Errorf("unexpected masked token %q", s.LINE.ChannelAccessToken)
	}
	if s.LINE.ChannelSecret != "***" {
		t.Errorf("unexpected masked secret %q", s.LINE.ChannelSecret)
	}
	if cfg.LINE.ChannelAccessToken != "token-0123456789" {
		t.Error("Sanitize must not modify the original")
	}
}
