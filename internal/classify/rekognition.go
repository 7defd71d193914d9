// Package classify labels stored images with Amazon Rekognition.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/samber/lo"

	"linerelay/internal/domain"
)

// RekognitionAPI is the subset of the Rekognition client the classifier needs.
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, opts ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	DetectCustomLabels(ctx context.Context, in *rekognition.DetectCustomLabelsInput, opts ...func(*rekognition.Options)) (*rekognition.DetectCustomLabelsOutput, error)
}

type Config struct {
	// ModelID is a Custom Labels project version ARN. Empty uses the
	// general-purpose label detector.
	ModelID       string
	MinConfidence float64
	MaxLabels     int
	Logger        *slog.Logger
}

// Rekognition implements domain.Classifier.
type Rekognition struct {
	client RekognitionAPI
	cfg    Config
}

func NewRekognition(awsCfg aws.Config, cfg Config) *Rekognition {
	return NewRekognitionWithClient(rekognition.NewFromConfig(awsCfg), cfg)
}

func NewRekognitionWithClient(client RekognitionAPI, cfg Config) *Rekognition {
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = 10
	}
	return &Rekognition{client: client, cfg: cfg}
}

// Classify reads the image straight from its bucket and returns labels
// ordered by confidence, highest first.
func (r *Rekognition) Classify(ctx context.Context, ref domain.BlobRef) ([]domain.Label, error) {
	image := &types.Image{S3Object: &types.S3Object{
		Bucket: aws.String(ref.Bucket),
		Name:   aws.String(ref.Key),
	}}

	var labels []domain.Label
	if r.cfg.ModelID != "" {
		out, err := r.client.DetectCustomLabels(ctx, &rekognition.DetectCustomLabelsInput{
			ProjectVersionArn: aws.String(r.cfg.ModelID),
			Image:             image,
			MaxResults:        aws.Int32(int32(r.cfg.MaxLabels)),
			MinConfidence:     aws.Float32(float32(r.cfg.MinConfidence)),
		})
		if err != nil {
			return nil, fmt.Errorf("detect custom labels: %w", err)
		}
		labels = lo.Map(out.CustomLabels, func(l types.CustomLabel, _ int) domain.Label {
			return toLabel(l.Name, l.Confidence)
		})
	} else {
		out, err := r.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
			Image:         image,
			MaxLabels:     aws.Int32(int32(r.cfg.MaxLabels)),
			MinConfidence: aws.Float32(float32(r.cfg.MinConfidence)),
		})
		if err != nil {
			return nil, fmt.Errorf("detect labels: %w", err)
		}
		labels = lo.Map(out.Labels, func(l types.Label, _ int) domain.Label {
			return toLabel(l.Name, l.Confidence)
		})
	}

	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Confidence > labels[j].Confidence
	})
	r.cfg.Logger.Debug("image classified", "key", ref.Key, "labels", len(labels))
	return labels, nil
}

func toLabel(name *string, confidence *float32) domain.Label {
	return domain.Label{Name: aws.ToString(name), Confidence: float64(aws.ToFloat32(confidence))}
}
