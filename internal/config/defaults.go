package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			Timezone:  "Local",
			BatchMode: "first",
		},
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8080,
			Path:                  "/webhook",
			MaxBodyBytes:          1 << 20,
			RequestTimeoutSeconds: 30,
		},
		LINE: LINEConfig{
			APIBase:         "https://api.line.me",
			DataAPIBase:     "https://api-data.line.me",
			TimeoutSeconds:  30,
			MaxContentBytes: 10 << 20,
		},
		Records: RecordsConfig{
			Backend: "sqlite",
			DBPath:  "~/.linerelay/records.db",
		},
		Objects: ObjectsConfig{
			Backend: "s3",
			RootDir: "~/.linerelay/objects",
		},
		Classifier: ClassifierConfig{
			Enabled:       false,
			MinConfidence: 50,
			MaxLabels:     10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

// LambdaDefaults are the defaults for the Lambda host, where the local disk
// does not outlive an invocation: records go to DynamoDB unless the file or
// RECORD_BACKEND says otherwise.
func LambdaDefaults() *Config {
	cfg := Defaults()
	cfg.Records.Backend = "dynamodb"
	cfg.Records.DBPath = ""
	return cfg
}
