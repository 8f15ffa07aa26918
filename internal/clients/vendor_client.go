package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/importer"
)

// VendorClient handles communication with the vendor-service
type VendorClient struct {
	baseURL    string
	httpClient *http.Client
}

// Vendor represents a vendor from vendor-service
type Vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// VendorResponse from vendor-service
type VendorResponse struct {
	Success bool    `json:"success"`
	Data    *Vendor `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
}

// NewVendorClient creates a new vendor client
func NewVendorClient(baseURL string) *VendorClient {
	if baseURL == "" {
		baseURL = "http://vendor-service:8080"
	}

	return &VendorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetVendorByID retrieves a vendor by its ID. Unknown vendors wrap importer.ErrNotFound.
func (c *VendorClient) GetVendorByID(ctx context.Context, vendorID string) (*Vendor, error) {
	url := fmt.Sprintf("%s/api/v1/vendors/%s", c.baseURL, vendorID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call vendor service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("vendor %s: %w", vendorID, importer.ErrNotFound)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get vendor: %d - %s", resp.StatusCode, string(body))
	}

	var result VendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, importer.ErrNotFound)
	}
	return result.Data, nil
}

// VerifySeller checks that the seller of a run exists
func (c *VendorClient) VerifySeller(ctx context.Context, sellerID int64) error {
	_, err := c.GetVendorByID(ctx, strconv.FormatInt(sellerID, 10))
	return err
}
