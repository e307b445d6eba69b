package product

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/productgen/engine/core"
	"github.com/go-viper/mapstructure/v2"
)

// Type is the product classification.
type Type string

const (
	TypeStandard     Type = "standard"
	TypeSubscription Type = "subscription"
	TypeBundle       Type = "bundle"
	TypeGiftcard     Type = "giftcard"
)

// Delivery is the fulfillment method derived from Type.
type Delivery string

const (
	DeliveryShipment     Delivery = "shipment"
	DeliverySubscription Delivery = "subscription"
	DeliveryGiftcard     Delivery = "giftcard"
)

// MaxSlugLength bounds Record.Slug.
const MaxSlugLength = 1000

// Record is a normalized catalog product. Fields added by schema
// instructions that have no typed counterpart land in Extra.
type Record struct {
	Name               string           `json:"name"                          mapstructure:"name"`
	Slug               string           `json:"slug"                          mapstructure:"slug"`
	Type               *Type            `json:"type,omitempty"                mapstructure:"type"`
	Delivery           *Delivery        `json:"delivery,omitempty"            mapstructure:"delivery"`
	Description        *string          `json:"description,omitempty"         mapstructure:"description"`
	Active             *bool            `json:"active,omitempty"              mapstructure:"active"`
	SKU                *string          `json:"sku,omitempty"                 mapstructure:"sku"`
	Code               *string          `json:"code,omitempty"                mapstructure:"code"`
	Currency           *string          `json:"currency,omitempty"            mapstructure:"currency"`
	Price              *float64         `json:"price,omitempty"               mapstructure:"price"`
	Sale               *bool            `json:"sale,omitempty"                mapstructure:"sale"`
	SalePrice          *float64         `json:"sale_price,omitempty"          mapstructure:"sale_price"`
	Cost               *float64         `json:"cost,omitempty"                mapstructure:"cost"`
	StockTracking      *bool            `json:"stock_tracking,omitempty"      mapstructure:"stock_tracking"`
	Bundle             *bool            `json:"bundle,omitempty"              mapstructure:"bundle"`
	BundleItems        []BundleItem     `json:"bundle_items,omitempty"        mapstructure:"bundle_items"`
	Options            []Option         `json:"options,omitempty"             mapstructure:"options"`
	Variants           []Variant        `json:"variants,omitempty"            mapstructure:"variants"`
	PurchaseOptions    *PurchaseOptions `json:"purchase_options,omitempty"    mapstructure:"purchase_options"`
	Attributes         *Attributes      `json:"attributes,omitempty"          mapstructure:"attributes"`
	Images             []Image          `json:"images,omitempty"              mapstructure:"images"`
	CategoryIndex      []string         `json:"category_index,omitempty"      mapstructure:"category_index"`
	Tags               []string         `json:"tags,omitempty"                mapstructure:"tags"`
	ShipmentDimensions *Dimensions      `json:"shipment_dimensions,omitempty" mapstructure:"shipment_dimensions"`
	ShipmentWeight     *float64         `json:"shipment_weight,omitempty"     mapstructure:"shipment_weight"`
	MetaTitle          *string          `json:"meta_title,omitempty"          mapstructure:"meta_title"`
	MetaDescription    *string          `json:"meta_description,omitempty"    mapstructure:"meta_description"`
	Reviews            []Review         `json:"reviews,omitempty"             mapstructure:"reviews"`
	Extra              map[string]any   `json:"-"                             mapstructure:",remain"`

	doc map[string]any
}

type BundleItem struct {
	ProductName string  `json:"product_name"           mapstructure:"product_name"`
	VariantName *string `json:"variant_name,omitempty" mapstructure:"variant_name"`
	Quantity    *int    `json:"quantity,omitempty"     mapstructure:"quantity"`
}

type Option struct {
	Name      string        `json:"name"                 mapstructure:"name"`
	Variant   *bool         `json:"variant,omitempty"    mapstructure:"variant"`
	Required  *bool         `json:"required,omitempty"   mapstructure:"required"`
	InputType *string       `json:"input_type,omitempty" mapstructure:"input_type"`
	Values    []OptionValue `json:"values,omitempty"     mapstructure:"values"`
}

// GeneratesVariants reports whether the option's values produce variants.
func (o Option) GeneratesVariants() bool {
	return o.Variant != nil && *o.Variant
}

type OptionValue struct {
	Name        string   `json:"name"                  mapstructure:"name"`
	Price       *float64 `json:"price,omitempty"       mapstructure:"price"`
	Description *string  `json:"description,omitempty" mapstructure:"description"`
}

type Image struct {
	URL     *string `json:"url,omitempty"     mapstructure:"url"`
	Caption *string `json:"caption,omitempty" mapstructure:"caption"`
}

type Dimensions struct {
	Length *float64 `json:"length,omitempty" mapstructure:"length"`
	Width  *float64 `json:"width,omitempty"  mapstructure:"width"`
	Height *float64 `json:"height,omitempty" mapstructure:"height"`
	Unit   *string  `json:"unit,omitempty"   mapstructure:"unit"`
}

type Attributes struct {
	Generated *bool          `json:"generated,omitempty" mapstructure:"generated"`
	Brand     *string        `json:"brand,omitempty"     mapstructure:"brand"`
	Material  *string        `json:"material,omitempty"  mapstructure:"material"`
	Color     *string        `json:"color,omitempty"     mapstructure:"color"`
	Gender    *string        `json:"gender,omitempty"    mapstructure:"gender"`
	Extra     map[string]any `json:"-"                   mapstructure:",remain"`
}

type Review struct {
	Name     *string `json:"name,omitempty"     mapstructure:"name"`
	Title    *string `json:"title,omitempty"    mapstructure:"title"`
	Comments *string `json:"comments,omitempty" mapstructure:"comments"`
	Rating   *int    `json:"rating,omitempty"   mapstructure:"rating"`
}

// Decode builds a Record from a normalized JSON object. The object is kept
// as the record's payload source so instruction-added fields survive.
func Decode(doc map[string]any) (*Record, error) {
	var rec Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &rec,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record decoder: %w", err)
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode product record: %w", err)
	}
	if rec.doc, err = core.CopyJSONObject(doc); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IsType reports whether the record has the given type.
func (r *Record) IsType(t Type) bool {
	return r.Type != nil && *r.Type == t
}

// IsBundle reports whether the bundle flag is set.
func (r *Record) IsBundle() bool {
	return r.Bundle != nil && *r.Bundle
}

// MarshalJSON emits the normalized document when the record was decoded,
// otherwise the typed fields merged with Extra.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.doc != nil {
		return json.Marshal(r.doc)
	}
	type plain Record
	base, err := json.Marshal((*plain)(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Payload returns the record as a JSON object with every null property
// removed, ready for submission.
func (r *Record) Payload() (map[string]any, error) {
	raw, err := r.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode product record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode product record: %w", err)
	}
	pruned, _ := PruneNulls(doc).(map[string]any)
	return pruned, nil
}

// PruneNulls removes null object properties and null array elements
// recursively.
func PruneNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if item == nil {
				continue
			}
			out[k] = PruneNulls(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, PruneNulls(item))
		}
		return out
	default:
		return v
	}
}
