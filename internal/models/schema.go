package models

import "time"

// GlobalSellerID marks schema rows visible to every seller
const GlobalSellerID int64 = 0

// AttributeValueType is the declared type of an attribute value
type AttributeValueType string

const (
	AttributeValueText           AttributeValueType = "text"
	AttributeValueNumber         AttributeValueType = "number"
	AttributeValueSelection      AttributeValueType = "selection"
	AttributeValueMultipleSelect AttributeValueType = "multiple_select"
)

// AttributeSet is a named, ordered collection of attribute groups a seller imports against
type AttributeSet struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	SellerID  int64            `json:"sellerId" gorm:"not null;index"`
	Name      string           `json:"name" gorm:"not null"`
	Groups    []AttributeGroup `json:"groups,omitempty" gorm:"foreignKey:AttributeSetID"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// AttributeGroup orders a subset of attributes inside an attribute set
type AttributeGroup struct {
	ID             uint                      `json:"id" gorm:"primaryKey"`
	AttributeSetID uint                      `json:"attributeSetId" gorm:"not null;index"`
	Name           string                    `json:"name" gorm:"not null"`
	Priority       int                       `json:"priority" gorm:"not null;default:0"`
	Members        []AttributeGroupAttribute `json:"members,omitempty" gorm:"foreignKey:AttributeGroupID"`
}

// AttributeGroupAttribute links an attribute into a group
type AttributeGroupAttribute struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	AttributeGroupID uint      `json:"attributeGroupId" gorm:"not null;index"`
	AttributeID      uint      `json:"attributeId" gorm:"not null;index"`
	IsVariation      bool      `json:"isVariation" gorm:"not null;default:false"`
	Priority         int       `json:"priority" gorm:"not null;default:0"`
	Attribute        Attribute `json:"attribute" gorm:"foreignKey:AttributeID"`
}

// Attribute describes one typed product property
type Attribute struct {
	ID         uint               `json:"id" gorm:"primaryKey"`
	Code       string             `json:"code" gorm:"not null;uniqueIndex"`
	Name       string             `json:"name" gorm:"not null"`
	ValueType  AttributeValueType `json:"valueType" gorm:"not null"`
	UnitFamily *string            `json:"unitFamily,omitempty"`
	Options    []AttributeOption  `json:"options,omitempty" gorm:"foreignKey:AttributeID"`
}

// AttributeOption is a selectable value of a selection attribute
type AttributeOption struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	AttributeID uint   `json:"attributeId" gorm:"not null;index"`
	SellerID    int64  `json:"sellerId" gorm:"not null;index"`
	Value       string `json:"value" gorm:"not null"`
}

// UomOption is a unit of measure with its conversion ratio to the family base unit
type UomOption struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	SellerID int64   `json:"sellerId" gorm:"not null;index"`
	Family   string  `json:"family" gorm:"not null;index"`
	Name     string  `json:"name" gorm:"not null"`
	Code     string  `json:"code" gorm:"not null"`
	Ratio    float64 `json:"ratio" gorm:"not null;default:1"`
}

// TableName returns the table name for the AttributeSet model
func (AttributeSet) TableName() string {
	return "attribute_sets"
}

// TableName returns the table name for the AttributeGroup model
func (AttributeGroup) TableName() string {
	return "attribute_groups"
}

// TableName returns the table name for the AttributeGroupAttribute model
func (AttributeGroupAttribute) TableName() string {
	return "attribute_group_attributes"
}

// TableName returns the table name for the Attribute model
func (Attribute) TableName() string {
	return "attributes"
}

// TableName returns the table name for the AttributeOption model
func (AttributeOption) TableName() string {
	return "attribute_options"
}

// TableName returns the table name for the UomOption model
func (UomOption) TableName() string {
	return "uom_options"
}
