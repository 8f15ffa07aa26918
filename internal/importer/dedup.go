package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"catalog-service/internal/models"
)

// BarcodePolicy decides what happens to a barcode that is already taken
type BarcodePolicy string

const (
	// BarcodePolicyReject fails the row with a duplicate barcode error
	BarcodePolicyReject BarcodePolicy = "reject"
	// BarcodePolicySuffix replaces the barcode with the first free "<barcode>-<n>"
	BarcodePolicySuffix BarcodePolicy = "suffix"
)

// maxBarcodeSuffix bounds the search for a free suffixed barcode
const maxBarcodeSuffix = 99

// ParseBarcodePolicy parses a configured policy name
func ParseBarcodePolicy(s string) (BarcodePolicy, error) {
	switch BarcodePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case BarcodePolicyReject:
		return BarcodePolicyReject, nil
	case BarcodePolicySuffix:
		return BarcodePolicySuffix, nil
	}
	return "", fmt.Errorf("unknown barcode policy %q", s)
}

// ClaimSet holds the unique keys claimed by rows of one run. Implementations
// must be safe for concurrent use by parallel group workers.
type ClaimSet interface {
	// Claim reserves every key or none. It returns the first key already held.
	Claim(ctx context.Context, keys ...string) (conflict string, err error)
	Release(ctx context.Context, keys ...string) error
}

// MemoryClaimSet is a ClaimSet for runs processed inside one process
type MemoryClaimSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryClaimSet creates an empty in-memory claim set
func NewMemoryClaimSet() *MemoryClaimSet {
	return &MemoryClaimSet{keys: make(map[string]struct{})}
}

func (s *MemoryClaimSet) Claim(_ context.Context, keys ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, held := s.keys[k]; held {
			return k, nil
		}
	}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return "", nil
}

func (s *MemoryClaimSet) Release(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

// CatalogLookup answers uniqueness questions against persisted catalog state
type CatalogLookup interface {
	SKUExists(ctx context.Context, sku string) (bool, error)
	SellerSKUExists(ctx context.Context, sellerID int64, sellerSKU string) (bool, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
}

// Claims are the keys a validated row holds in the run's claim set
type Claims []string

// DedupValidator enforces sku, seller_sku and barcode uniqueness before creation
type DedupValidator struct {
	lookup   CatalogLookup
	claims   ClaimSet
	policy   BarcodePolicy
	kind     models.ImportKind
	sellerID int64
}

// NewDedupValidator creates a validator for one run
func NewDedupValidator(lookup CatalogLookup, claims ClaimSet, policy BarcodePolicy, kind models.ImportKind, sellerID int64) *DedupValidator {
	if policy == "" {
		policy = BarcodePolicyReject
	}
	return &DedupValidator{lookup: lookup, claims: claims, policy: policy, kind: kind, sellerID: sellerID}
}

// Validate checks the row and claims its keys. The returned row differs from the
// input only when the suffix barcode policy renamed a barcode.
func (v *DedupValidator) Validate(ctx context.Context, row ImportRow) (ImportRow, Claims, error) {
	if !v.kind.IsUpdate() {
		exists, err := v.lookup.SKUExists(ctx, row.SKU())
		if err != nil {
			return row, nil, fmt.Errorf("failed to check sku: %w", err)
		}
		if exists {
			return row, nil, &DuplicateSkuError{Field: "sku", Value: row.SKU()}
		}

		exists, err = v.lookup.SellerSKUExists(ctx, v.sellerID, row.SellerSKU())
		if err != nil {
			return row, nil, fmt.Errorf("failed to check seller_sku: %w", err)
		}
		if exists {
			return row, nil, &DuplicateSkuError{Field: "seller_sku", Value: row.SellerSKU()}
		}
	}

	if v.policy == BarcodePolicyReject {
		for _, barcode := range row.Barcodes() {
			exists, err := v.lookup.BarcodeExists(ctx, barcode)
			if err != nil {
				return row, nil, fmt.Errorf("failed to check barcode: %w", err)
			}
			if exists {
				return row, nil, &DuplicateSkuError{Field: "barcode", Value: barcode}
			}
		}
	}

	keys := Claims{v.sellerSKUKey(row.SellerSKU())}
	if !v.kind.IsUpdate() {
		keys = append(Claims{skuKey(row.SKU())}, keys...)
	}
	if v.policy == BarcodePolicyReject {
		for _, barcode := range row.Barcodes() {
			keys = append(keys, barcodeKey(barcode))
		}
	}

	conflict, err := v.claims.Claim(ctx, keys...)
	if err != nil {
		return row, nil, fmt.Errorf("failed to claim row keys: %w", err)
	}
	if conflict != "" {
		field, value := splitKey(conflict)
		return row, nil, &DuplicateSkuError{Field: field, Value: value, InRun: true}
	}

	if v.policy == BarcodePolicySuffix && len(row.Barcodes()) > 0 {
		barcodes := make([]string, 0, len(row.Barcodes()))
		for _, barcode := range row.Barcodes() {
			free, err := v.claimFreeBarcode(ctx, barcode)
			if err != nil {
				_ = v.Release(ctx, keys)
				return row, nil, err
			}
			keys = append(keys, barcodeKey(free))
			barcodes = append(barcodes, free)
		}
		row = row.WithBarcodes(barcodes)
	}

	return row, keys, nil
}

// Release returns the keys of a row whose group did not commit
func (v *DedupValidator) Release(ctx context.Context, claims Claims) error {
	if len(claims) == 0 {
		return nil
	}
	return v.claims.Release(ctx, claims...)
}

func (v *DedupValidator) claimFreeBarcode(ctx context.Context, barcode string) (string, error) {
	for n := 0; n <= maxBarcodeSuffix; n++ {
		candidate := barcode
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d", barcode, n)
		}
		exists, err := v.lookup.BarcodeExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check barcode: %w", err)
		}
		if exists {
			continue
		}
		conflict, err := v.claims.Claim(ctx, barcodeKey(candidate))
		if err != nil {
			return "", fmt.Errorf("failed to claim barcode: %w", err)
		}
		if conflict == "" {
			return candidate, nil
		}
	}
	return "", &DuplicateSkuError{Field: "barcode", Value: barcode}
}

func (v *DedupValidator) sellerSKUKey(sellerSKU string) string {
	return fmt.Sprintf("seller_sku:%d/%s", v.sellerID, sellerSKU)
}

func skuKey(sku string) string         { return "sku:" + sku }
func barcodeKey(barcode string) string { return "barcode:" + barcode }

func splitKey(key string) (string, string) {
	field, value, _ := strings.Cut(key, ":")
	if field == "seller_sku" {
		if _, sku, ok := strings.Cut(value, "/"); ok {
			value = sku
		}
	}
	return field, value
}
