// Package relay turns webhook deliveries into stored event records and
// replies. One call to Dispatch handles one delivery synchronously.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linerelay/internal/domain"
	"linerelay/internal/metrics"
)

// BatchMode selects how many events of one delivery get answered.
type BatchMode string

const (
	// BatchFirst stops after the first event that was answered.
	BatchFirst BatchMode = "first"
	// BatchAll answers every qualifying event in delivery order.
	BatchAll BatchMode = "all"
)

// ParseBatchMode maps a config value to a BatchMode.
func ParseBatchMode(s string) (BatchMode, error) {
	switch BatchMode(s) {
	case BatchFirst, "":
		return BatchFirst, nil
	case BatchAll:
		return BatchAll, nil
	}
	return "", fmt.Errorf("unknown batch mode %q", s)
}

// Config wires the dispatcher to its collaborators. Classifier and Metrics
// may be nil.
type Config struct {
	Records    domain.RecordStore
	Objects    domain.ObjectStore
	Classifier domain.Classifier
	Profiles   domain.ProfileResolver
	Content    domain.ContentFetcher
	Notifier   domain.ReplyNotifier

	Location  *time.Location // for blob names; defaults to time.Local
	BatchMode BatchMode
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	Now       func() time.Time // ingestion clock; defaults to time.Now
}

// Dispatcher implements the event handling of the relay.
type Dispatcher struct {
	records    domain.RecordStore
	objects    domain.ObjectStore
	classifier domain.Classifier
	profiles   domain.ProfileResolver
	content    domain.ContentFetcher
	notifier   domain.ReplyNotifier

	loc     *time.Location
	mode    BatchMode
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BatchMode == "" {
		cfg.BatchMode = BatchFirst
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		records:    cfg.Records,
		objects:    cfg.Objects,
		classifier: cfg.Classifier,
		profiles:   cfg.Profiles,
		content:    cfg.Content,
		notifier:   cfg.Notifier,
		loc:        cfg.Location,
		mode:       cfg.BatchMode,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Outcome describes one answered event.
type Outcome struct {
	Index        int           `json:"index"`
	SubjectID    string        `json:"subject_id"`
	Timestamp    int64         `json:"timestamp"`
	Kind         string        `json:"kind"`
	ImageLocator string        `json:"image_locator,omitempty"`
	Label        *domain.Label `json:"label,omitempty"`
	Reply        string        `json:"reply"`
}

// Result summarizes a delivery. Skipped counts events that were examined
// but could not or need not be answered.
type Result struct {
	Processed []Outcome `json:"processed"`
	Skipped   int       `json:"skipped"`
}

// errSkip marks an event the relay does not handle.
var errSkip = errors.New("event skipped")

// Dispatch decodes a raw webhook body and handles its events.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (*Result, error) {
	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Events == nil {
		return nil, fmt.Errorf("%w: missing events", ErrMalformedPayload)
	}
	return d.DispatchPayload(ctx, payload)
}

// DispatchPayload handles the events of a decoded delivery in order. The
// first error aborts the delivery; outcomes gathered so far are returned
// with it.
func (d *Dispatcher) DispatchPayload(ctx context.Context, payload domain.WebhookPayload) (*Result, error) {
	res := &Result{}
	for i, ev := range payload.Events {
		kind := eventKind(ev)
		if ev.ReplyToken == "" {
			d.logger.Debug("event without reply token skipped", "index", i, "type", ev.Type)
			d.metrics.Event(kind, metrics.OutcomeSkipped)
			res.Skipped++
			continue
		}

		out, err := d.handle(ctx, i, ev)
		if errors.Is(err, errSkip) {
			d.logger.Warn("unsupported event skipped", "index", i, "type", ev.Type, "kind", kind)
			d.metrics.Event(kind, metrics.OutcomeSkipped)
			res.Skipped++
			continue
		}
		if err != nil {
			d.metrics.Event(kind, metrics.OutcomeFailed)
			d.logger.Error("event failed", "index", i, "kind", kind, "err", err)
			return res, err
		}

		d.metrics.Event(kind, metrics.OutcomeOK)
		res.Processed = append(res.Processed, *out)
		if d.mode == BatchFirst {
			if rest := len(payload.Events) - i - 1; rest > 0 {
				d.logger.Info("batch mode first: remaining events not processed", "remaining", rest)
			}
			break
		}
	}
	return res, nil
}

func eventKind(ev domain.WebhookEvent) string {
	if ev.Message == nil {
		return "none"
	}
	switch ev.Message.Type {
	case domain.MessageText, domain.MessageImage:
		return ev.Message.Type
	}
	return "other"
}

// handle runs one event through resolve, store, upsert and notify.
func (d *Dispatcher) handle(ctx context.Context, index int, ev domain.WebhookEvent) (*Outcome, error) {
	if ev.Source == nil || ev.Source.UserID == "" {
		return nil, malformed(index, "missing source.userId")
	}
	msg := ev.Message
	if msg == nil {
		return nil, errSkip
	}
	switch msg.Type {
	case domain.MessageText:
		if msg.Text == nil {
			return nil, malformed(index, "text message without text")
		}
	case domain.MessageImage:
		if msg.ID == "" {
			return nil, malformed(index, "image message without id")
		}
	default:
		return nil, errSkip
	}

	now := d.now()
	rec := domain.EventRecord{
		SubjectID: ev.Source.UserID,
		Timestamp: now.Unix(),
	}
	out := &Outcome{Index: index, SubjectID: rec.SubjectID, Timestamp: rec.Timestamp, Kind: msg.Type}

	d.logger.Info("event received", "index", index, "kind", msg.Type, "subject", rec.SubjectID, "timestamp", rec.Timestamp)

	err := d.stage(index, StageResolve, func() (err error) {
		rec.DisplayName, err = d.profiles.DisplayName(ctx, rec.SubjectID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if msg.Type == domain.MessageImage {
		label, err := d.storeImage(ctx, index, msg.ID, now, &rec)
		if err != nil {
			return nil, err
		}
		out.ImageLocator = *rec.ImageLocator
		out.Label = label
		out.Reply = imageReply(rec.DisplayName, label)
	} else {
		rec.MessageText = msg.Text
		out.Reply = textReply(rec.DisplayName, *msg.Text)
	}

	if err := d.stage(index, StageUpsert, func() error {
		return d.records.Upsert(ctx, rec)
	}); err != nil {
		return nil, err
	}

	if err := d.stage(index, StageNotify, func() error {
		return d.notifier.Reply(ctx, ev.ReplyToken, out.Reply)
	}); err != nil {
		return nil, err
	}

	d.logger.Info("event answered", "index", index, "kind", msg.Type, "subject", rec.SubjectID)
	return out, nil
}

// storeImage fetches the message content, writes the blob and, when a
// classifier is configured, labels it. It fills the image fields of rec.
func (d *Dispatcher) storeImage(ctx context.Context, index int, messageID string, at time.Time, rec *domain.EventRecord) (*domain.Label, error) {
	var data []byte
	err := d.stage(index, StageFetch, func() (err error) {
		data, err = d.content.MessageContent(ctx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	contentType, ext := sniffImage(data)
	name := ObjectName(rec.DisplayName, at, d.loc, ext)

	var ref domain.BlobRef
	err = d.stage(index, StageStore, func() (err error) {
		ref, err = d.objects.Put(ctx, name, data, contentType)
		return err
	})
	if err != nil {
		return nil, err
	}
	rec.ImageLocator = &ref.Locator
	d.logger.Info("image stored", "index", index, "key", ref.Key, "content_type", contentType, "bytes", len(data))

	if d.classifier == nil {
		return nil, nil
	}

	var labels []domain.Label
	err = d.stage(index, StageClassify, func() (err error) {
		labels, err = d.classifier.Classify(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	top, ok := TopLabel(labels)
	if !ok {
		top = domain.Label{Name: Uncategorized}
		rec.ClassificationLabel = &top.Name
		return &top, nil
	}
	rec.ClassificationLabel = &top.Name
	rec.ClassificationConfidence = &top.Confidence
	return &top, nil
}

// stage times fn and wraps its error with the stage name.
func (d *Dispatcher) stage(index int, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		return &StageError{Stage: name, Event: index, Err: err}
	}
	return nil
}
