package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/importer"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	ReportStream      = "CATALOG_IMPORT_REPORTS"
	subjectRowReport  = "catalog.import.report.row"
	subjectFinalize   = "catalog.import.report.finalize"
	reportConsumer    = "catalog-import-reports"
	reportRetryDelay  = 5 * time.Second
	reportPublishWait = 10 * time.Second
)

type finalizeMessage struct {
	ImportID uuid.UUID `json:"importId"`
}

// ConnectNATS opens a NATS connection that keeps reconnecting
func ConnectNATS(natsURL, name string, logger *logrus.Logger) (*nats.Conn, error) {
	if natsURL == "" {
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// JetStreamReportQueue publishes report jobs to a work-queue stream. Row jobs
// carry the row tag as message id so redeliveries are dropped by the server.
type JetStreamReportQueue struct {
	js jetstream.JetStream
}

// NewJetStreamReportQueue creates the report stream if needed
func NewJetStreamReportQueue(ctx context.Context, nc *nats.Conn) (*JetStreamReportQueue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       ReportStream,
		Subjects:   []string{"catalog.import.report.>"},
		Retention:  jetstream.WorkQueuePolicy,
		MaxAge:     24 * time.Hour * 7,
		Storage:    jetstream.FileStorage,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure %s stream: %w", ReportStream, err)
	}

	return &JetStreamReportQueue{js: js}, nil
}

func (q *JetStreamReportQueue) EnqueueRowReport(ctx context.Context, job importer.ReportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.js.Publish(ctx, subjectRowReport, data, jetstream.WithMsgID(job.Tag))
	return err
}

func (q *JetStreamReportQueue) EnqueueFinalize(ctx context.Context, importID uuid.UUID) error {
	data, err := json.Marshal(finalizeMessage{ImportID: importID})
	if err != nil {
		return err
	}
	_, err = q.js.Publish(ctx, subjectFinalize, data, jetstream.WithMsgID("finalize-"+importID.String()))
	return err
}

// ReportWorker consumes report jobs from the report stream
type ReportWorker struct {
	js       jetstream.JetStream
	attacher *ReportAttacher
	logger   *logrus.Entry
	stopCh   chan struct{}
}

func NewReportWorker(queue *JetStreamReportQueue, attacher *ReportAttacher, logger *logrus.Logger) *ReportWorker {
	return &ReportWorker{
		js:       queue.js,
		attacher: attacher,
		logger:   logger.WithField("component", "report-worker"),
		stopCh:   make(chan struct{}),
	}
}

// Start consumes until Stop is called or ctx is done
func (w *ReportWorker) Start(ctx context.Context) {
	consumer, err := w.js.CreateOrUpdateConsumer(ctx, ReportStream, jetstream.ConsumerConfig{
		Durable:    reportConsumer,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    60 * time.Second,
		MaxDeliver: 10,
	})
	if err != nil {
		w.logger.WithError(err).Error("Failed to create report consumer")
		return
	}

	msgs, err := consumer.Messages()
	if err != nil {
		w.logger.WithError(err).Error("Failed to get report messages iterator")
		return
	}

	go func() {
		select {
		case <-w.stopCh:
		case <-ctx.Done():
		}
		msgs.Stop()
	}()

	w.logger.Info("Report worker started")
	for {
		msg, err := msgs.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				w.logger.Info("Report worker stopped")
				return
			}
			w.logger.WithError(err).Warn("Error getting next report message")
			time.Sleep(time.Second)
			continue
		}

		if err := w.handle(ctx, msg.Subject(), msg.Data()); err != nil {
			w.logger.WithError(err).WithField("subject", msg.Subject()).Error("Report job failed")
			_ = msg.NakWithDelay(reportRetryDelay)
			continue
		}
		_ = msg.Ack()
	}
}

// Stop signals the worker to stop
func (w *ReportWorker) Stop() {
	close(w.stopCh)
}

func (w *ReportWorker) handle(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case subjectRowReport:
		var job importer.ReportJob
		if err := json.Unmarshal(data, &job); err != nil {
			w.logger.WithError(err).Warn("Dropping malformed row report job")
			return nil
		}
		return w.attacher.Attach(ctx, job)
	case subjectFinalize:
		var msg finalizeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.WithError(err).Warn("Dropping malformed finalize job")
			return nil
		}
		return w.attacher.Finalize(ctx, msg.ImportID)
	default:
		w.logger.WithField("subject", subject).Warn("Dropping report job with unknown subject")
		return nil
	}
}
