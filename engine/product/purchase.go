package product

// PurchaseOptions holds the purchase terms. Each kind has its own shape and
// any combination may be present.
type PurchaseOptions struct {
	Standard     *StandardOption     `json:"standard,omitempty"     mapstructure:"standard"`
	Subscription *SubscriptionOption `json:"subscription,omitempty" mapstructure:"subscription"`
	Trial        *TrialOption        `json:"trial,omitempty"        mapstructure:"trial"`
}

// Kinds lists the purchase option kinds that are present.
func (p *PurchaseOptions) Kinds() []string {
	if p == nil {
		return nil
	}
	var kinds []string
	if p.Standard != nil {
		kinds = append(kinds, "standard")
	}
	if p.Subscription != nil {
		kinds = append(kinds, "subscription")
	}
	if p.Trial != nil {
		kinds = append(kinds, "trial")
	}
	return kinds
}

type StandardOption struct {
	Active    *bool    `json:"active,omitempty"     mapstructure:"active"`
	Price     *float64 `json:"price,omitempty"      mapstructure:"price"`
	Sale      *bool    `json:"sale,omitempty"       mapstructure:"sale"`
	SalePrice *float64 `json:"sale_price,omitempty" mapstructure:"sale_price"`
}

type SubscriptionOption struct {
	Active *bool  `json:"active,omitempty" mapstructure:"active"`
	Plans  []Plan `json:"plans"            mapstructure:"plans"`
}

type TrialOption struct {
	Active     *bool    `json:"active,omitempty"      mapstructure:"active"`
	Price      *float64 `json:"price,omitempty"       mapstructure:"price"`
	TrialDays  int      `json:"trial_days"            mapstructure:"trial_days"`
	AuthAmount *float64 `json:"auth_amount,omitempty" mapstructure:"auth_amount"`
}

// Plan is a subscription plan. OrderSchedule is set only when fulfillment
// differs from billing.
type Plan struct {
	Name            string    `json:"name"                     mapstructure:"name"`
	Price           *float64  `json:"price,omitempty"          mapstructure:"price"`
	BillingSchedule Schedule  `json:"billing_schedule"         mapstructure:"billing_schedule"`
	OrderSchedule   *Schedule `json:"order_schedule,omitempty" mapstructure:"order_schedule"`
}

// EffectiveOrderSchedule falls back to the billing schedule.
func (p Plan) EffectiveOrderSchedule() Schedule {
	if p.OrderSchedule != nil {
		return *p.OrderSchedule
	}
	return p.BillingSchedule
}

type Schedule struct {
	Interval      string `json:"interval"                 mapstructure:"interval"`
	IntervalCount *int   `json:"interval_count,omitempty" mapstructure:"interval_count"`
	Limit         *int   `json:"limit,omitempty"          mapstructure:"limit"`
	TrialDays     *int   `json:"trial_days,omitempty"     mapstructure:"trial_days"`
}
