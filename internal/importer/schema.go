package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"catalog-service/internal/models"
)

// ErrNotFound is returned by stores when a looked-up record does not exist
var ErrNotFound = errors.New("record not found")

// SchemaAttribute is one attribute of a resolved schema
type SchemaAttribute struct {
	AttributeID uint
	Code        string
	Name        string
	ValueType   models.AttributeValueType
	IsVariation bool
	// UnitFamily is empty when the attribute is not linked to a unit of measure
	UnitFamily string
	Priority   int
}

// UnitOption is a unit of measure visible to the seller of a run
type UnitOption struct {
	ID     uint
	Name   string
	Code   string
	Family string
	Ratio  float64
}

// Schema is the immutable attribute layout a run validates rows against.
// It is built once per run and shared read-only by every stage.
type Schema struct {
	attributeSetID uint
	sellerID       int64
	attributes     []SchemaAttribute
	byCode         map[string]int
	options        map[uint]map[string]uint
	optionValues   map[uint]string
	units          []UnitOption
}

// NewSchema builds a Schema from a preloaded attribute set and the unit options
// of the seller. Options owned by other sellers are dropped.
func NewSchema(set *models.AttributeSet, uoms []models.UomOption, sellerID int64) (*Schema, error) {
	if set == nil {
		return nil, &SchemaNotFoundError{Reason: "attribute set is missing"}
	}
	if set.SellerID != models.GlobalSellerID && set.SellerID != sellerID {
		return nil, &SchemaNotFoundError{AttributeSetID: set.ID, Reason: "attribute set belongs to another seller"}
	}
	if len(set.Groups) == 0 {
		return nil, &SchemaNotFoundError{AttributeSetID: set.ID, Reason: "attribute set has no attribute groups"}
	}

	groups := make([]models.AttributeGroup, len(set.Groups))
	copy(groups, set.Groups)
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority < groups[j].Priority
		}
		return groups[i].ID < groups[j].ID
	})

	s := &Schema{
		attributeSetID: set.ID,
		sellerID:       sellerID,
		byCode:         make(map[string]int),
		options:        make(map[uint]map[string]uint),
		optionValues:   make(map[uint]string),
	}

	for _, group := range groups {
		members := make([]models.AttributeGroupAttribute, len(group.Members))
		copy(members, group.Members)
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].Priority != members[j].Priority {
				return members[i].Priority < members[j].Priority
			}
			return members[i].AttributeID < members[j].AttributeID
		})

		for _, member := range members {
			attr := member.Attribute
			code := normalizeKey(attr.Code)
			if code == "" {
				continue
			}
			if _, seen := s.byCode[code]; seen {
				continue
			}
			sa := SchemaAttribute{
				AttributeID: member.AttributeID,
				Code:        code,
				Name:        attr.Name,
				ValueType:   attr.ValueType,
				IsVariation: member.IsVariation,
				Priority:    len(s.attributes),
			}
			if attr.UnitFamily != nil {
				sa.UnitFamily = strings.TrimSpace(*attr.UnitFamily)
			}
			s.byCode[code] = len(s.attributes)
			s.attributes = append(s.attributes, sa)

			values := make(map[string]uint)
			for _, opt := range attr.Options {
				if opt.SellerID != models.GlobalSellerID && opt.SellerID != sellerID {
					continue
				}
				key := normalizeKey(opt.Value)
				if _, ok := values[key]; ok && opt.SellerID == models.GlobalSellerID {
					// seller-owned options win over global ones with the same value
					continue
				}
				values[key] = opt.ID
				s.optionValues[opt.ID] = strings.TrimSpace(opt.Value)
			}
			s.options[member.AttributeID] = values
		}
	}

	// own units first so they shadow global units with the same name
	var global []UnitOption
	for _, u := range uoms {
		unit := UnitOption{ID: u.ID, Name: strings.TrimSpace(u.Name), Code: strings.TrimSpace(u.Code), Family: u.Family, Ratio: u.Ratio}
		switch u.SellerID {
		case sellerID:
			s.units = append(s.units, unit)
		case models.GlobalSellerID:
			global = append(global, unit)
		}
	}
	s.units = append(s.units, global...)

	return s, nil
}

// AttributeSetID returns the id of the attribute set the schema was built from
func (s *Schema) AttributeSetID() uint { return s.attributeSetID }

// SellerID returns the seller the schema was resolved for
func (s *Schema) SellerID() int64 { return s.sellerID }

// Attributes returns the attributes in schema priority order
func (s *Schema) Attributes() []SchemaAttribute {
	out := make([]SchemaAttribute, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// Attribute looks up an attribute by its code
func (s *Schema) Attribute(code string) (SchemaAttribute, bool) {
	idx, ok := s.byCode[normalizeKey(code)]
	if !ok {
		return SchemaAttribute{}, false
	}
	return s.attributes[idx], true
}

// HasVariationAttributes reports whether products of this schema can have more than one variant
func (s *Schema) HasVariationAttributes() bool {
	for _, a := range s.attributes {
		if a.IsVariation {
			return true
		}
	}
	return false
}

// LookupOption resolves a selection value to its option id and canonical display value
func (s *Schema) LookupOption(attributeID uint, value string) (uint, string, bool) {
	id, ok := s.options[attributeID][normalizeKey(value)]
	if !ok {
		return 0, "", false
	}
	return id, s.optionValues[id], true
}

// LookupUnit resolves a unit of measure by name or code. An empty family matches any family.
func (s *Schema) LookupUnit(value, family string) (UnitOption, bool) {
	key := normalizeKey(value)
	if key == "" {
		return UnitOption{}, false
	}
	for _, u := range s.units {
		if family != "" && !strings.EqualFold(u.Family, family) {
			continue
		}
		if normalizeKey(u.Name) == key || normalizeKey(u.Code) == key {
			return u, true
		}
	}
	return UnitOption{}, false
}

// SchemaSource loads the raw schema records. Implementations return an error
// wrapping ErrNotFound for unknown attribute sets.
type SchemaSource interface {
	GetAttributeSet(ctx context.Context, attributeSetID uint) (*models.AttributeSet, error)
	ListUomOptions(ctx context.Context, sellerID int64) ([]models.UomOption, error)
}

// SchemaResolver produces the Schema of a run
type SchemaResolver struct {
	source SchemaSource
}

// NewSchemaResolver creates a new schema resolver
func NewSchemaResolver(source SchemaSource) *SchemaResolver {
	return &SchemaResolver{source: source}
}

// Resolve loads and validates the attribute set of a run
func (r *SchemaResolver) Resolve(ctx context.Context, sellerID int64, attributeSetID uint) (*Schema, error) {
	set, err := r.source.GetAttributeSet(ctx, attributeSetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &SchemaNotFoundError{AttributeSetID: attributeSetID, Reason: "attribute set does not exist"}
		}
		return nil, fmt.Errorf("failed to load attribute set %d: %w", attributeSetID, err)
	}
	uoms, err := r.source.ListUomOptions(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load units of measure: %w", err)
	}
	return NewSchema(set, uoms, sellerID)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
