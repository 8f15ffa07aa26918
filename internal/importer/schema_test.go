package importer

import (
	"context"
	"errors"
	"testing"

	"catalog-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema_OrdersAttributesByPriority(t *testing.T) {
	schema := mustSchema(t, testAttributeSet())

	var codes []string
	for _, a := range schema.Attributes() {
		codes = append(codes, a.Code)
	}
	assert.Equal(t, []string{"color", "size", "weight", "material", "care"}, codes)
	assert.True(t, schema.HasVariationAttributes())

	weight, ok := schema.Attribute("WEIGHT")
	require.True(t, ok)
	assert.Equal(t, "weight", weight.UnitFamily)
	assert.False(t, weight.IsVariation)
	assert.Equal(t, models.AttributeValueNumber, weight.ValueType)
}

func TestNewSchema_OptionVisibility(t *testing.T) {
	schema := mustSchema(t, testAttributeSet())

	id, display, ok := schema.LookupOption(101, " red ")
	assert.True(t, ok)
	assert.Equal(t, uint(301), id)
	assert.Equal(t, "Red", display)

	_, _, ok = schema.LookupOption(101, "Teal")
	assert.True(t, ok, "own seller option is visible")

	_, _, ok = schema.LookupOption(101, "Magenta")
	assert.False(t, ok, "another seller's option is hidden")
}

func TestNewSchema_UnitLookup(t *testing.T) {
	schema := mustSchema(t, testAttributeSet())

	unit, ok := schema.LookupUnit("piece", "")
	require.True(t, ok)
	assert.Equal(t, uint(1), unit.ID)

	unit, ok = schema.LookupUnit("G", "weight")
	require.True(t, ok)
	assert.Equal(t, 0.001, unit.Ratio)

	_, ok = schema.LookupUnit("kg", "count")
	assert.False(t, ok, "unit outside the requested family")

	_, ok = schema.LookupUnit("Box", "")
	assert.True(t, ok)

	_, ok = schema.LookupUnit("Crate", "")
	assert.False(t, ok)

	_, ok = schema.LookupUnit("", "")
	assert.False(t, ok)
}

func TestNewSchema_Rejections(t *testing.T) {
	t.Run("no groups", func(t *testing.T) {
		_, err := NewSchema(&models.AttributeSet{ID: 9}, nil, testSellerID)
		var notFound *SchemaNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("other seller", func(t *testing.T) {
		set := testFlatAttributeSet()
		set.SellerID = 99
		_, err := NewSchema(set, nil, testSellerID)
		var notFound *SchemaNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("flat set has no variation attributes", func(t *testing.T) {
		schema := mustSchema(t, testFlatAttributeSet())
		assert.False(t, schema.HasVariationAttributes())
	})
}

func TestSchemaResolver_Resolve(t *testing.T) {
	resolver := NewSchemaResolver(&fakeSchemas{sets: map[uint]*models.AttributeSet{3: testAttributeSet()}})

	schema, err := resolver.Resolve(context.Background(), testSellerID, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), schema.AttributeSetID())
	assert.Equal(t, testSellerID, schema.SellerID())

	_, err = resolver.Resolve(context.Background(), testSellerID, 42)
	var notFound *SchemaNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, uint(42), notFound.AttributeSetID)
	assert.True(t, IsRunLevel(err))
}
