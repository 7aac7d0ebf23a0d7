// Package catalog holds the canonical product model emitted to downstream
// consumers. JSON tags are the external field names of the event payload.
package catalog

import "time"

// Text is a localized string. EN is always present; AR is optional.
type Text struct {
	EN string  `json:"en"`
	AR *string `json:"ar,omitempty"`
}

// NewText builds a Text, leaving AR unset when ar is empty.
func NewText(en, ar string) Text {
	t := Text{EN: en}
	if ar != "" {
		t.AR = &ar
	}
	return t
}

// Secondary returns the AR value or "".
func (t Text) Secondary() string {
	if t.AR == nil {
		return ""
	}
	return *t.AR
}

// AttributeKind is the semantic type of an attribute.
type AttributeKind string

const (
	KindColor    AttributeKind = "color"
	KindSize     AttributeKind = "size"
	KindMaterial AttributeKind = "material"
	KindStyle    AttributeKind = "style"
	KindNeckline AttributeKind = "neckline"
	KindType     AttributeKind = "type"
	KindOccasion AttributeKind = "occasion"
	KindText     AttributeKind = "text"
)

// ImageRole distinguishes the lead image from the rest of the gallery.
type ImageRole string

const (
	RoleMain    ImageRole = "main"
	RoleGallery ImageRole = "gallery"
)

type Category struct {
	ID       string  `json:"id"`
	Name     Text    `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parentId,omitempty"`
	Level    int     `json:"level"`
	IsLeaf   bool    `json:"isLeaf"`
}

type Attribute struct {
	ID    string        `json:"id"`
	Name  Text          `json:"name"`
	Value Text          `json:"value"`
	Kind  AttributeKind `json:"type"`
}

// Money never carries a negative Amount.
type Money struct {
	Amount          float64  `json:"amount"`
	Currency        string   `json:"currency"`
	OriginalAmount  *float64 `json:"originalAmount,omitempty"`
	DiscountPercent *float64 `json:"discountPercent,omitempty"`
	USDAmount       *float64 `json:"usdAmount,omitempty"`
}

type Color struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type Variant struct {
	ID     string   `json:"id"`
	SKU    string   `json:"sku"`
	Color  *Color   `json:"color,omitempty"`
	Size   *string  `json:"size,omitempty"`
	Price  Money    `json:"price"`
	Stock  int      `json:"stock"`
	Images []string `json:"images"`
}

type Image struct {
	URL       string    `json:"url"`
	Role      ImageRole `json:"type"`
	VariantID *string   `json:"variantId,omitempty"`
	SortOrder int       `json:"sortOrder"`
}

type Metadata struct {
	Source            string    `json:"source"`
	SourceID          string    `json:"sourceId"`
	ImportedAt        time.Time `json:"importedAt"`
	ProductRelationID *string   `json:"productRelationId,omitempty"`
}

// Product is the normalized representation of one supplier record. It is
// built once by the normalizer and not modified afterwards.
type Product struct {
	ID          string      `json:"id"`
	SKU         string      `json:"sku"`
	Name        Text        `json:"name"`
	Description *Text       `json:"description,omitempty"`
	Categories  []Category  `json:"categories"`
	Attributes  []Attribute `json:"attributes"`
	Variants    []Variant   `json:"variants"`
	Images      []Image     `json:"images"`
	Metadata    Metadata    `json:"metadata"`
}
