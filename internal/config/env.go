package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay lists the variables read from the process environment.
// Unset variables leave the file or default value in place.
type envOverlay struct {
	TableName          string `envconfig:"TABLE_NAME"`
	BucketName         string `envconfig:"BUCKET_NAME"`
	ChannelAccessToken string `envconfig:"CHANNEL_ACCESS_TOKEN"`
	ChannelSecret      string `envconfig:"CHANNEL_SECRET"`
	ClassifierModel    string `envconfig:"CLASSIFIER_MODEL"`
	ClassifierEnabled  *bool  `envconfig:"CLASSIFIER_ENABLED"`
	RecordBackend      string `envconfig:"RECORD_BACKEND"`
	ObjectBackend      string `envconfig:"OBJECT_BACKEND"`
	LogLevel           string `envconfig:"LOG_LEVEL"`
	Timezone           string `envconfig:"TIMEZONE"`
	BatchMode          string `envconfig:"BATCH_MODE"`
	Port               *int   `envconfig:"PORT"`
	AWSRegion          string `envconfig:"AWS_REGION"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setIf(&cfg.Records.TableName, env.TableName)
	setIf(&cfg.Records.Backend, env.RecordBackend)
	setIf(&cfg.Objects.BucketName, env.BucketName)
	setIf(&cfg.Objects.Backend, env.ObjectBackend)
	setIf(&cfg.LINE.ChannelAccessToken, env.ChannelAccessToken)
	setIf(&cfg.LINE.ChannelSecret, env.ChannelSecret)
	setIf(&cfg.Classifier.ModelID, env.ClassifierModel)
	setIf(&cfg.General.LogLevel, env.LogLevel)
	setIf(&cfg.General.Timezone, env.Timezone)
	setIf(&cfg.General.BatchMode, env.BatchMode)
	setIf(&cfg.AWS.Region, env.AWSRegion)

	if env.ClassifierEnabled != nil {
		cfg.Classifier.Enabled = *env.ClassifierEnabled
	}
	if env.Port != nil {
		cfg.Server.Port = *env.Port
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
