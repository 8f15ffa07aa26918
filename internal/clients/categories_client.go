package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalog-service/internal/importer"
	"github.com/sirupsen/logrus"
)

// categoryCacheTTL bounds how long a resolved name is reused across groups
const categoryCacheTTL = 5 * time.Minute

// CategoriesClient resolves category names through the categories-service
type CategoriesClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry

	mu    sync.RWMutex
	cache map[string]cachedCategory
}

type cachedCategory struct {
	id      string
	expires time.Time
}

// Category represents a category from categories-service
type Category struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parentId,omitempty"`
	Status   string  `json:"status"`
	IsActive bool    `json:"isActive"`
}

// CategoryListResponse from categories-service
type CategoryListResponse struct {
	Success bool       `json:"success"`
	Data    []Category `json:"data,omitempty"`
}

// NewCategoriesClient creates a new categories client
func NewCategoriesClient(baseURL string, logger *logrus.Logger) *CategoriesClient {
	if baseURL == "" {
		baseURL = "http://categories-service:8080"
	}

	return &CategoriesClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.WithField("client", "categories"),
		cache:  make(map[string]cachedCategory),
	}
}

// ResolveCategory returns the id of the seller's category with the given name.
// Matching is case-insensitive. Unknown names wrap importer.ErrNotFound.
func (c *CategoriesClient) ResolveCategory(ctx context.Context, sellerID int64, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("category name is required")
	}

	key := fmt.Sprintf("%d:%s", sellerID, strings.ToLower(name))
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.id, nil
	}

	category, err := c.findCategoryByName(ctx, sellerID, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[key] = cachedCategory{id: category.ID, expires: time.Now().Add(categoryCacheTTL)}
	c.mu.Unlock()

	return category.ID, nil
}

// findCategoryByName searches the seller's categories for an exact name match
func (c *CategoriesClient) findCategoryByName(ctx context.Context, sellerID int64, name string) (*Category, error) {
	endpoint := fmt.Sprintf("%s/api/v1/categories?search=%s", c.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", strconv.FormatInt(sellerID, 10))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call categories service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"sellerID": sellerID,
		}).Warn("Categories API returned an error")
		return nil, fmt.Errorf("failed to list categories: %d - %s", resp.StatusCode, string(body))
	}

	var result CategoryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode categories response: %w", err)
	}

	nameLower := strings.ToLower(name)
	for i := range result.Data {
		if strings.ToLower(result.Data[i].Name) == nameLower {
			return &result.Data[i], nil
		}
	}

	return nil, fmt.Errorf("category %q: %w", name, importer.ErrNotFound)
}
