package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// productSink is the part of the go-shared publisher this package uses
type productSink interface {
	PublishProduct(ctx context.Context, event *events.ProductEvent) error
}

// Publisher announces imported products on the products stream. It runs as a
// post-commit hook of the import pipeline.
type Publisher struct {
	publisher *events.Publisher
	sink      productSink
	logger    *logrus.Entry
}

// NewPublisher creates a new product events publisher
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		// Default to GKE internal NATS service URL
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "catalog-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	// Ensure the products stream exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, events.StreamProducts, []string{"product.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure products stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		sink:      publisher,
		logger:    logger.WithField("component", "products-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

func (p *Publisher) Name() string { return "product-events" }

// AfterCommit publishes one event per committed sellable
func (p *Publisher) AfterCommit(ctx context.Context, run *models.ImportRun, outcome *importer.GroupOutcome) error {
	for _, event := range buildEvents(run, outcome) {
		p.publish(event)
	}
	return nil
}

func buildEvents(run *models.ImportRun, outcome *importer.GroupOutcome) []*events.ProductEvent {
	if outcome == nil || outcome.Product == nil {
		return nil
	}

	eventType, changeType := events.ProductCreated, "created"
	if outcome.Kind.IsUpdate() {
		eventType, changeType = events.ProductUpdated, "updated"
	}

	sellerID := strconv.FormatInt(run.SellerID, 10)
	product := outcome.Product
	out := make([]*events.ProductEvent, 0, len(outcome.Rows))
	for _, row := range outcome.Rows {
		event := events.NewProductEvent(eventType, sellerID)
		event.SourceID = uuid.New().String()
		event.ProductID = product.ID.String()
		event.ProductName = product.Name
		event.Status = string(product.Status)
		event.CategoryID = product.CategoryID
		event.VendorID = sellerID
		event.ActorID = run.CreatedBy
		event.ChangeType = changeType
		if row.Sellable != nil {
			event.SKU = row.Sellable.SKU
		}

		newValue := map[string]interface{}{
			"importId": run.ID.String(),
			"rowIndex": row.RowIndex,
		}
		if row.Variant != nil {
			newValue["variantId"] = row.Variant.ID.String()
			newValue["variantName"] = row.Variant.Name
		}
		if row.Sellable != nil {
			newValue["sellableProductId"] = row.Sellable.ID.String()
			newValue["sellerSku"] = row.Sellable.SellerSKU
		}
		event.NewValue = newValue
		out = append(out, event)
	}
	return out
}

// publish is a helper that logs and publishes events asynchronously
func (p *Publisher) publish(event *events.ProductEvent) {
	// Publish asynchronously to not block the import
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.sink.PublishProduct(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"productID": event.ProductID,
				"tenantID":  event.TenantID,
			}).WithError(err).Error("Failed to publish product event")
			return
		}
		p.logger.WithFields(logrus.Fields{
			"eventType": event.EventType,
			"productID": event.ProductID,
			"sku":       event.SKU,
		}).Debug("Product event published")
	}()
}
