package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"terminbuch/internal/models"
)

func (db *DB) UpsertSalon(ctx context.Context, s *models.Salon) error {
	query := `INSERT INTO salons (id, name, slug, timezone, currency, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, slug = excluded.slug, timezone = excluded.timezone,
                currency = excluded.currency, is_active = excluded.is_active, updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, s.ID, s.Name, s.Slug, s.Timezone, s.Currency, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert salon: %w", err)
	}
	return nil
}

func (db *DB) SalonByID(ctx context.Context, id string) (*models.Salon, error) {
	query := `SELECT id, name, slug, timezone, currency, is_active, created_at, updated_at
              FROM salons WHERE id = ?`
	var s models.Salon
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Slug, &s.Timezone, &s.Currency, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("salon %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get salon: %w", err)
	}
	return &s, nil
}

func (db *DB) UpsertStaff(ctx context.Context, st *models.Staff) error {
	query := `INSERT INTO staff (id, salon_id, display_name, sort_order, is_bookable_online, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                salon_id = excluded.salon_id, display_name = excluded.display_name,
                sort_order = excluded.sort_order, is_bookable_online = excluded.is_bookable_online,
                is_active = excluded.is_active, updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, st.ID, st.SalonID, st.DisplayName, st.SortOrder,
		st.IsBookableOnline, st.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert staff: %w", err)
	}
	return nil
}

func (db *DB) StaffByID(ctx context.Context, id string) (*models.Staff, error) {
	query := `SELECT id, salon_id, display_name, sort_order, is_bookable_online, is_active, created_at, updated_at
              FROM staff WHERE id = ?`
	var st models.Staff
	err := db.QueryRowContext(ctx, query, id).Scan(
		&st.ID, &st.SalonID, &st.DisplayName, &st.SortOrder, &st.IsBookableOnline,
		&st.IsActive, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return &st, nil
}

// BookableStaff returns active, online-bookable staff of a salon in display
// order.
func (db *DB) BookableStaff(ctx context.Context, salonID string) ([]*models.Staff, error) {
	query := `SELECT id, salon_id, display_name, sort_order, is_bookable_online, is_active, created_at, updated_at
              FROM staff
              WHERE salon_id = ? AND is_active = 1 AND is_bookable_online = 1
              ORDER BY sort_order, id`
	rows, err := db.QueryContext(ctx, query, salonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookable staff: %w", err)
	}
	defer rows.Close()

	var result []*models.Staff
	for rows.Next() {
		var st models.Staff
		if err := rows.Scan(&st.ID, &st.SalonID, &st.DisplayName, &st.SortOrder,
			&st.IsBookableOnline, &st.IsActive, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		result = append(result, &st)
	}
	return result, rows.Err()
}

func (db *DB) UpsertServiceCategory(ctx context.Context, c *models.ServiceCategory) error {
	query := `INSERT INTO service_categories (id, salon_id, name, slug, sort_order, is_active)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, slug = excluded.slug,
                sort_order = excluded.sort_order, is_active = excluded.is_active`
	_, err := db.ExecContext(ctx, query, c.ID, c.SalonID, c.Name, c.Slug, c.SortOrder, c.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert service category: %w", err)
	}
	return nil
}

func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	query := `INSERT INTO services (
                id, salon_id, category_id, name, slug, base_duration_minutes,
                buffer_before_minutes, buffer_after_minutes, current_price_cents, tax_rate_percent,
                sort_order, is_bookable_online, requires_deposit, deposit_amount_cents, is_active,
                created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                category_id = excluded.category_id, name = excluded.name, slug = excluded.slug,
                base_duration_minutes = excluded.base_duration_minutes,
                buffer_before_minutes = excluded.buffer_before_minutes,
                buffer_after_minutes = excluded.buffer_after_minutes,
                current_price_cents = excluded.current_price_cents,
                tax_rate_percent = excluded.tax_rate_percent,
                sort_order = excluded.sort_order, is_bookable_online = excluded.is_bookable_online,
                requires_deposit = excluded.requires_deposit,
                deposit_amount_cents = excluded.deposit_amount_cents,
                is_active = excluded.is_active, updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, s.ID, s.SalonID, s.CategoryID, s.Name, s.Slug,
		s.BaseDurationMinutes, s.BufferBeforeMinutes, s.BufferAfterMinutes,
		s.CurrentPriceCents, s.TaxRatePercent, s.SortOrder, s.IsBookableOnline,
		s.RequiresDeposit, s.DepositAmountCents, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	return nil
}

// ServicesByIDs returns the salon's services in the requested order: the
// order of a multi-service chain is meaningful for buffer math.
func (db *DB) ServicesByIDs(ctx context.Context, salonID string, ids []string) ([]*models.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]any, 0, len(ids)+1)
	args = append(args, salonID)
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id)
	}

	query := `SELECT id, salon_id, category_id, name, slug, base_duration_minutes,
                     buffer_before_minutes, buffer_after_minutes, current_price_cents, tax_rate_percent,
                     sort_order, is_bookable_online, requires_deposit, deposit_amount_cents, is_active,
                     created_at, updated_at
              FROM services WHERE salon_id = ? AND id IN (` + placeholders + `)`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Service, len(ids))
	for rows.Next() {
		var s models.Service
		if err := rows.Scan(&s.ID, &s.SalonID, &s.CategoryID, &s.Name, &s.Slug,
			&s.BaseDurationMinutes, &s.BufferBeforeMinutes, &s.BufferAfterMinutes,
			&s.CurrentPriceCents, &s.TaxRatePercent, &s.SortOrder, &s.IsBookableOnline,
			&s.RequiresDeposit, &s.DepositAmountCents, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		byID[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*models.Service, 0, len(ids))
	for _, id := range ids {
		if svc, ok := byID[id]; ok {
			result = append(result, svc)
		}
	}
	return result, nil
}

func (db *DB) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	query := `INSERT INTO customers (
                id, salon_id, profile_id, loyalty_tier, total_visits, total_spend_cents,
                accepts_marketing_email, accepts_marketing_sms, is_active, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                loyalty_tier = excluded.loyalty_tier, total_visits = excluded.total_visits,
                total_spend_cents = excluded.total_spend_cents,
                accepts_marketing_email = excluded.accepts_marketing_email,
                accepts_marketing_sms = excluded.accepts_marketing_sms,
                is_active = excluded.is_active, updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query, c.ID, c.SalonID, c.ProfileID, c.LoyaltyTier,
		c.TotalVisits, c.TotalSpendCents, c.AcceptsMarketingEmail, c.AcceptsMarketingSMS,
		c.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (db *DB) CustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	query := `SELECT id, salon_id, profile_id, loyalty_tier, total_visits, total_spend_cents,
                     accepts_marketing_email, accepts_marketing_sms, is_active, created_at, updated_at
              FROM customers WHERE id = ?`
	var c models.Customer
	var tier sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.SalonID, &c.ProfileID, &tier, &c.TotalVisits, &c.TotalSpendCents,
		&c.AcceptsMarketingEmail, &c.AcceptsMarketingSMS, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.LoyaltyTier = tier.String
	return &c, nil
}

// RecordCompletedVisit bumps the customer's loyalty aggregates after a
// completed appointment.
func (db *DB) RecordCompletedVisit(ctx context.Context, customerID string, spentCents int64) error {
	query := `UPDATE customers
              SET total_visits = total_visits + 1,
                  total_spend_cents = total_spend_cents + ?,
                  updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, spentCents, time.Now().UTC(), customerID)
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}
