package importer

import (
	"fmt"
	"strconv"

	"catalog-service/internal/models"
)

// ImportGroup is a parent row with its child rows, or a standalone row.
// Key is the file row index of the parent.
type ImportGroup struct {
	Key  int
	Rows []RawRow
}

// RejectedRow is a row excluded from every group. It still gets a result record.
type RejectedRow struct {
	Row      RawRow
	GroupKey int
	Err      error
}

// GroupBuilder clusters rows into import groups in a single pass over the file
type GroupBuilder struct {
	allowGroups   bool
	allowVariants bool
	maxVariants   int

	groups   []*ImportGroup
	byParent map[int]*ImportGroup
	children map[int]bool
	rejected []RejectedRow
}

// NewGroupBuilder creates a group builder. maxVariants <= 0 disables the size limit.
func NewGroupBuilder(kind models.ImportKind, schema *Schema, maxVariants int) *GroupBuilder {
	return &GroupBuilder{
		allowGroups:   kind.AllowsGroups(),
		allowVariants: schema.HasVariationAttributes(),
		maxVariants:   maxVariants,
		byParent:      make(map[int]*ImportGroup),
		children:      make(map[int]bool),
	}
}

// Add consumes the next row of the file
func (b *GroupBuilder) Add(row RawRow) {
	ref := row.Get(models.ColumnParentRow)
	if ref == "" {
		group := &ImportGroup{Key: row.Index, Rows: []RawRow{row}}
		b.groups = append(b.groups, group)
		b.byParent[row.Index] = group
		return
	}

	if !b.allowGroups {
		b.reject(row, row.Index, &OrphanChildRowError{ParentRow: ref, Reason: "this import type does not accept child rows"})
		return
	}
	parentIndex, err := strconv.Atoi(ref)
	if err != nil {
		b.reject(row, row.Index, &OrphanChildRowError{ParentRow: ref, Reason: "is not a row number"})
		return
	}

	group, ok := b.byParent[parentIndex]
	switch {
	case ok:
		group.Rows = append(group.Rows, row)
		b.children[row.Index] = true
	case b.children[parentIndex]:
		b.reject(row, parentIndex, &OrphanChildRowError{ParentRow: ref, Reason: "references a child row"})
	default:
		b.reject(row, parentIndex, &OrphanChildRowError{ParentRow: ref, Reason: "does not exist earlier in the file"})
	}
}

// Result validates the collected groups and returns them in file order of their
// parents, along with every rejected row
func (b *GroupBuilder) Result() ([]ImportGroup, []RejectedRow) {
	groups := make([]ImportGroup, 0, len(b.groups))
	for _, group := range b.groups {
		if err := b.validate(group); err != nil {
			parent := group.Rows[0]
			b.reject(parent, group.Key, err)
			for _, child := range group.Rows[1:] {
				b.reject(child, group.Key, &OrphanChildRowError{
					ParentRow: strconv.Itoa(group.Key),
					Reason:    "parent row failed group validation",
				})
			}
			continue
		}
		groups = append(groups, *group)
	}
	return groups, b.rejected
}

func (b *GroupBuilder) validate(group *ImportGroup) error {
	if len(group.Rows) == 1 {
		return nil
	}
	if !b.allowVariants {
		return &GroupValidationError{Reason: "the attribute set has no variation attributes, so a product can have only one variant"}
	}
	if b.maxVariants > 0 && len(group.Rows) > b.maxVariants {
		return &GroupValidationError{Reason: fmt.Sprintf("a product can have at most %d variants, got %d", b.maxVariants, len(group.Rows))}
	}
	return nil
}

func (b *GroupBuilder) reject(row RawRow, groupKey int, err error) {
	b.rejected = append(b.rejected, RejectedRow{Row: row, GroupKey: groupKey, Err: err})
}

// BuildGroups runs a GroupBuilder over all rows
func BuildGroups(kind models.ImportKind, schema *Schema, maxVariants int, rows []RawRow) ([]ImportGroup, []RejectedRow) {
	b := NewGroupBuilder(kind, schema, maxVariants)
	for _, row := range rows {
		b.Add(row)
	}
	return b.Result()
}
