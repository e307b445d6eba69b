package product

// Variant overrides a subset of the parent's fields. Absent overrides fall
// back to the parent at read time through the Effective accessors.
type Variant struct {
	Name            string           `json:"name"                       mapstructure:"name"`
	SKU             *string          `json:"sku,omitempty"              mapstructure:"sku"`
	Code            *string          `json:"code,omitempty"             mapstructure:"code"`
	Price           *float64         `json:"price,omitempty"            mapstructure:"price"`
	SalePrice       *float64         `json:"sale_price,omitempty"       mapstructure:"sale_price"`
	Cost            *float64         `json:"cost,omitempty"             mapstructure:"cost"`
	StockLevel      *int             `json:"stock_level,omitempty"      mapstructure:"stock_level"`
	ShipmentWeight  *float64         `json:"shipment_weight,omitempty"  mapstructure:"shipment_weight"`
	Images          []Image          `json:"images,omitempty"           mapstructure:"images"`
	PurchaseOptions *PurchaseOptions `json:"purchase_options,omitempty" mapstructure:"purchase_options"`
}

func (v Variant) EffectiveSKU(parent *Record) *string {
	if v.SKU != nil || parent == nil {
		return v.SKU
	}
	return parent.SKU
}

func (v Variant) EffectiveCode(parent *Record) *string {
	if v.Code != nil || parent == nil {
		return v.Code
	}
	return parent.Code
}

func (v Variant) EffectiveCost(parent *Record) *float64 {
	if v.Cost != nil || parent == nil {
		return v.Cost
	}
	return parent.Cost
}

func (v Variant) EffectiveShipmentWeight(parent *Record) *float64 {
	if v.ShipmentWeight != nil || parent == nil {
		return v.ShipmentWeight
	}
	return parent.ShipmentWeight
}

func (v Variant) EffectiveImages(parent *Record) []Image {
	if v.Images != nil || parent == nil {
		return v.Images
	}
	return parent.Images
}

func (v Variant) EffectivePurchaseOptions(parent *Record) *PurchaseOptions {
	if v.PurchaseOptions != nil || parent == nil {
		return v.PurchaseOptions
	}
	return parent.PurchaseOptions
}
