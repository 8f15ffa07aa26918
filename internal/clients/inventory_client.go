package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
)

// InventoryClient registers sellable products with the inventory-service
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// RegisterItemRequest creates an empty stock record for a sellable
type RegisterItemRequest struct {
	SKU               string `json:"sku"`
	SellerSKU         string `json:"sellerSku"`
	ProductID         string `json:"productId"`
	SellableProductID string `json:"sellableProductId"`
	UomCode           string `json:"uomCode"`
	Quantity          int    `json:"quantity"`
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(baseURL string) *InventoryClient {
	if baseURL == "" {
		baseURL = "http://inventory-service:8088"
	}

	return &InventoryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RegisterItem creates the stock record of one sellable. An existing record is not an error.
func (c *InventoryClient) RegisterItem(ctx context.Context, sellerID int64, item RegisterItemRequest) error {
	body, err := json.Marshal(item)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/inventory/items", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", strconv.FormatInt(sellerID, 10))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call inventory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return nil
	}
	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("failed to register inventory item: %d - %s", resp.StatusCode, string(respBody))
}

func (c *InventoryClient) Name() string { return "inventory-registration" }

// AfterCommit registers every sellable created by a group. Update imports create
// no sellables and are skipped.
func (c *InventoryClient) AfterCommit(ctx context.Context, run *models.ImportRun, outcome *importer.GroupOutcome) error {
	if outcome == nil || outcome.Kind.IsUpdate() {
		return nil
	}

	var failed []string
	for _, row := range outcome.Rows {
		if row.Sellable == nil {
			continue
		}
		item := RegisterItemRequest{
			SKU:               row.Sellable.SKU,
			SellerSKU:         row.Sellable.SellerSKU,
			ProductID:         row.Sellable.ProductID.String(),
			SellableProductID: row.Sellable.ID.String(),
			UomCode:           row.Sellable.UomCode,
		}
		if err := c.RegisterItem(ctx, run.SellerID, item); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", item.SKU, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("inventory registration failed for %d sellables: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
