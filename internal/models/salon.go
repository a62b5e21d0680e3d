package models

import "time"

type Salon struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Slug      string    `yaml:"slug" json:"slug"`
	Timezone  string    `yaml:"timezone" json:"timezone"`
	Currency  string    `yaml:"currency" json:"currency"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// Location resolves the salon timezone. All interval math for the salon's
// staff happens in this location.
func (s *Salon) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

type Staff struct {
	ID               string    `yaml:"id" json:"id"`
	SalonID          string    `yaml:"salon_id" json:"salon_id"`
	DisplayName      string    `yaml:"display_name" json:"display_name"`
	SortOrder        int64     `yaml:"sort_order" json:"sort_order"`
	IsBookableOnline bool      `yaml:"is_bookable_online" json:"is_bookable_online"`
	IsActive         bool      `yaml:"is_active" json:"is_active"`
	CreatedAt        time.Time `yaml:"-" json:"created_at"`
	UpdatedAt        time.Time `yaml:"-" json:"updated_at"`
}

type ServiceCategory struct {
	ID        string `yaml:"id" json:"id"`
	SalonID   string `yaml:"salon_id" json:"salon_id"`
	Name      string `yaml:"name" json:"name"`
	Slug      string `yaml:"slug" json:"slug"`
	SortOrder int64  `yaml:"sort_order" json:"sort_order"`
	IsActive  bool   `yaml:"is_active" json:"is_active"`
}

type Service struct {
	ID                  string    `yaml:"id" json:"id"`
	SalonID             string    `yaml:"salon_id" json:"salon_id"`
	CategoryID          string    `yaml:"category_id" json:"category_id,omitempty"`
	Name                string    `yaml:"name" json:"name"`
	Slug                string    `yaml:"slug" json:"slug"`
	BaseDurationMinutes int       `yaml:"base_duration_minutes" json:"base_duration_minutes"`
	BufferBeforeMinutes int       `yaml:"buffer_before_minutes" json:"buffer_before_minutes"`
	BufferAfterMinutes  int       `yaml:"buffer_after_minutes" json:"buffer_after_minutes"`
	CurrentPriceCents   int64     `yaml:"current_price_cents" json:"current_price_cents"`
	TaxRatePercent      float64   `yaml:"tax_rate_percent" json:"tax_rate_percent"`
	SortOrder           int64     `yaml:"sort_order" json:"sort_order"`
	IsBookableOnline    bool      `yaml:"is_bookable_online" json:"is_bookable_online"`
	RequiresDeposit     bool      `yaml:"requires_deposit" json:"requires_deposit"`
	DepositAmountCents  int64     `yaml:"deposit_amount_cents" json:"deposit_amount_cents,omitempty"`
	IsActive            bool      `yaml:"is_active" json:"is_active"`
	CreatedAt           time.Time `yaml:"-" json:"created_at"`
	UpdatedAt           time.Time `yaml:"-" json:"updated_at"`
}

type Customer struct {
	ID                    string    `yaml:"id" json:"id"`
	SalonID               string    `yaml:"salon_id" json:"salon_id"`
	ProfileID             string    `yaml:"profile_id" json:"profile_id"`
	LoyaltyTier           string    `yaml:"loyalty_tier" json:"loyalty_tier,omitempty"`
	TotalVisits           int64     `yaml:"total_visits" json:"total_visits"`
	TotalSpendCents       int64     `yaml:"total_spend_cents" json:"total_spend_cents"`
	AcceptsMarketingEmail bool      `yaml:"accepts_marketing_email" json:"accepts_marketing_email"`
	AcceptsMarketingSMS   bool      `yaml:"accepts_marketing_sms" json:"accepts_marketing_sms"`
	IsActive              bool      `yaml:"is_active" json:"is_active"`
	CreatedAt             time.Time `yaml:"-" json:"created_at"`
	UpdatedAt             time.Time `yaml:"-" json:"updated_at"`
}
