package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/servicehub/booking-engine/internal/models"
)

// ErrTransitionRejected means the guarded UPDATE matched no row: the booking
// is missing, in another status, or already claimed by someone else.
var ErrTransitionRejected = errors.New("booking transition rejected")

var bookingColumnNames = []string{
	"id", "booking_number", "customer_id", "partner_id", "business_partner_id", "status",
	"scheduled_at", "service_address", "service_latitude", "service_longitude",
	"total_amount", "advance_amount", "remaining_amount",
	"overtime_charge", "platform_fee", "commission_amount", "refund_amount",
	"payment_status", "payment_method", "payment_reference",
	"estimated_duration", "actual_duration", "start_otp", "completion_otp",
	"before_images", "after_images", "rejected_partner_ids",
	"assigned_at", "accepted_at", "arrived_at", "started_at", "completed_at", "cancelled_at",
	"cancelled_by", "cancellation_reason", "notes", "created_at", "updated_at",
}

var bookingColumns = strings.Join(bookingColumnNames, ", ")

func prefixedBookingColumns(alias string) string {
	cols := make([]string, len(bookingColumnNames))
	for i, c := range bookingColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// TransitionParams describes one guarded status change
type TransitionParams struct {
	BookingID uuid.UUID
	// From lists the statuses the booking must currently be in
	From []models.BookingStatus
	// To is the new status; empty keeps the current status (photo uploads)
	To      models.BookingStatus
	ActorID *uuid.UUID
	Notes   string

	// RequireUnassigned adds "partner_id IS NULL" to the guard (FIFO claim)
	RequireUnassigned bool
	// RequirePartnerID adds "partner_id = ?" to the guard
	RequirePartnerID *uuid.UUID

	Changes models.BookingChanges

	// Postings are applied to wallets in the same transaction (refunds)
	Postings []models.LedgerPosting

	// CountAcceptanceFor increments the partner's total_bookings
	CountAcceptanceFor *uuid.UUID
}

// CompletionParams carries everything written when a job completes
type CompletionParams struct {
	BookingID        uuid.UUID
	PartnerID        uuid.UUID
	ActorID          uuid.UUID
	CompletedAt      time.Time
	ActualDuration   int
	OvertimeCharge   decimal.Decimal
	TotalAmount      decimal.Decimal
	RemainingAmount  decimal.Decimal
	PlatformFee      decimal.Decimal
	CommissionAmount decimal.Decimal
	Postings         []models.LedgerPosting
	Invoice          *models.Invoice
	Notes            string
}

// BookingRepository handles booking persistence
type BookingRepository struct {
	db       *sqlx.DB
	currency string
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB, currency string) *BookingRepository {
	return &BookingRepository{db: db, currency: currency}
}

// ============================================================================
// CREATE
// ============================================================================

// Create inserts the booking, its items and its opening history. A booking
// inserted already routed past PENDING gets both history rows. When payment is
// set (wallet bookings) the customer is debited in the same transaction.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking, items []models.BookingItem, payment *models.LedgerPosting) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if payment != nil {
			if _, err := postLedgerEntry(ctx, tx, r.currency, *payment); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO bookings (
				id, booking_number, customer_id, business_partner_id, status,
				scheduled_at, service_address, service_latitude, service_longitude,
				total_amount, advance_amount, remaining_amount,
				payment_status, payment_method, payment_reference,
				estimated_duration, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

		if _, err := tx.ExecContext(ctx, query,
			booking.ID, booking.BookingNumber, booking.CustomerID, booking.BusinessPartnerID, booking.Status,
			booking.ScheduledAt, booking.ServiceAddress, booking.ServiceLatitude, booking.ServiceLongitude,
			booking.TotalAmount, booking.AdvanceAmount, booking.RemainingAmount,
			booking.PaymentStatus, booking.PaymentMethod, booking.PaymentReference,
			booking.EstimatedDuration, booking.Notes, booking.CreatedAt, booking.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}

		for _, item := range items {
			itemQuery := `
				INSERT INTO booking_items (
					id, booking_id, service_id, category_id, service_name,
					quantity, base_price, unit_price, total_price, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
			if _, err := tx.ExecContext(ctx, itemQuery,
				item.ID, booking.ID, item.ServiceID, item.CategoryID, item.ServiceName,
				item.Quantity, item.BasePrice, item.UnitPrice, item.TotalPrice, item.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to create booking item: %w", err)
			}
		}

		if err := insertHistoryTx(ctx, tx, booking.ID, models.BookingStatusPending, &booking.CustomerID, "Booking created"); err != nil {
			return err
		}
		if booking.Status == models.BookingStatusPending {
			return nil
		}
		return insertHistoryTx(ctx, tx, booking.ID, booking.Status, &booking.CustomerID, "")
	})
}

// ============================================================================
// QUERIES
// ============================================================================

// GetByID returns a booking with its items
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	items, err := r.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.Items = items
	return &booking, nil
}

// GetItems returns the booking's line items
func (r *BookingRepository) GetItems(ctx context.Context, bookingID uuid.UUID) ([]models.BookingItem, error) {
	query := `
		SELECT id, booking_id, service_id, category_id, service_name, quantity, base_price, unit_price, total_price, created_at
		FROM booking_items
		WHERE booking_id = $1
		ORDER BY created_at`

	items := []models.BookingItem{}
	if err := r.db.SelectContext(ctx, &items, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking items: %w", err)
	}
	return items, nil
}

// GetHistory returns the booking's status timeline, oldest first
func (r *BookingRepository) GetHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingStatusHistory, error) {
	query := `
		SELECT id, booking_id, status, actor_id, notes, created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY created_at, id`

	history := []models.BookingStatusHistory{}
	if err := r.db.SelectContext(ctx, &history, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking history: %w", err)
	}
	return history, nil
}

// GetInvoice returns the invoice issued at completion
func (r *BookingRepository) GetInvoice(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	query := `
		SELECT id, invoice_number, booking_id, customer_id, subtotal, overtime_charge,
		       tax_rate, tax_amount, grand_total, issued_at
		FROM invoices
		WHERE booking_id = $1`
	if err := r.db.GetContext(ctx, &invoice, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice for booking %s: %w", bookingID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

// List returns bookings matching the filter, newest first
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if filter.PartnerID != nil {
		add("partner_id = $%d", *filter.PartnerID)
	}
	if filter.BusinessPartnerID != nil {
		add("business_partner_id = $%d", *filter.BusinessPartnerID)
	}
	if filter.From != nil {
		add("scheduled_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("scheduled_at < $%d", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListClaimable returns open bookings in the partner's category that the
// partner has not already rejected, earliest scheduled first
func (r *BookingRepository) ListClaimable(ctx context.Context, categoryID, partnerID uuid.UUID, limit int) ([]models.Booking, error) {
	query := `
		SELECT ` + prefixedBookingColumns("b") + `
		FROM bookings b
		WHERE b.status = ANY($1)
		  AND b.partner_id IS NULL
		  AND b.business_partner_id IS NULL
		  AND NOT ($2::uuid = ANY(b.rejected_partner_ids))
		  AND EXISTS (
			SELECT 1 FROM booking_items bi
			WHERE bi.booking_id = b.id AND bi.category_id = $3
		  )
		ORDER BY b.scheduled_at
		LIMIT $4`

	statuses := pq.Array([]string{
		string(models.BookingStatusSearchingPartner),
		string(models.BookingStatusPending),
	})

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, statuses, partnerID, categoryID, limit); err != nil {
		return nil, fmt.Errorf("failed to list claimable bookings: %w", err)
	}
	return bookings, nil
}

// ListStale returns bookings that have sat in status since before cutoff
func (r *BookingRepository) ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time, limit int) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, status, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}
	return bookings, nil
}

// ListAbandoned returns PENDING bookings with no payment created before cutoff
func (r *BookingRepository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'PENDING' AND payment_status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list abandoned bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// Transition applies a guarded status change. The UPDATE's WHERE clause is the
// compare-and-swap: concurrent callers racing on the same guard see exactly
// one success and ErrTransitionRejected for the rest.
func (r *BookingRepository) Transition(ctx context.Context, p TransitionParams) (*models.Booking, error) {
	var booking models.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query, args := buildTransitionQuery(p)
		if err := tx.GetContext(ctx, &booking, query, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransitionRejected
			}
			return fmt.Errorf("failed to update booking: %w", err)
		}

		for _, posting := range p.Postings {
			if _, err := postLedgerEntry(ctx, tx, r.currency, posting); err != nil {
				return err
			}
		}

		if p.CountAcceptanceFor != nil {
			if err := incrementAcceptedTx(ctx, tx, *p.CountAcceptanceFor); err != nil {
				return err
			}
		}

		if p.To != "" {
			return insertHistoryTx(ctx, tx, booking.ID, booking.Status, p.ActorID, p.Notes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func buildTransitionQuery(p TransitionParams) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendArray := func(column string, values []string) {
		args = append(args, pq.Array(values))
		sets = append(sets, fmt.Sprintf("%s = %s || $%d::text[]", column, column, len(args)))
	}

	if p.To != "" {
		set("status", p.To)
	}

	c := p.Changes
	if c.PartnerID != nil {
		set("partner_id", *c.PartnerID)
	}
	if c.ClearPartner {
		sets = append(sets, "partner_id = NULL")
	}
	if c.AssignedAt != nil {
		set("assigned_at", *c.AssignedAt)
	}
	if c.AcceptedAt != nil {
		set("accepted_at", *c.AcceptedAt)
	}
	if c.ArrivedAt != nil {
		set("arrived_at", *c.ArrivedAt)
	}
	if c.StartedAt != nil {
		set("started_at", *c.StartedAt)
	}
	if c.CancelledAt != nil {
		set("cancelled_at", *c.CancelledAt)
	}
	if c.CancelledBy != nil {
		set("cancelled_by", *c.CancelledBy)
	}
	if c.CancellationReason != nil {
		set("cancellation_reason", *c.CancellationReason)
	}
	if c.StartOTP != nil {
		set("start_otp", *c.StartOTP)
	}
	if c.ClearStartOTP {
		sets = append(sets, "start_otp = NULL")
	}
	if c.CompletionOTP != nil {
		set("completion_otp", *c.CompletionOTP)
	}
	if c.RefundAmount != nil {
		set("refund_amount", *c.RefundAmount)
	}
	if c.PaymentStatus != nil {
		set("payment_status", *c.PaymentStatus)
	}
	if c.PaymentReference != nil {
		set("payment_reference", *c.PaymentReference)
	}
	if len(c.AppendBeforeImages) > 0 {
		appendArray("before_images", c.AppendBeforeImages)
	}
	if len(c.AppendAfterImages) > 0 {
		appendArray("after_images", c.AppendAfterImages)
	}
	if c.AppendRejected != nil {
		args = append(args, *c.AppendRejected)
		sets = append(sets, fmt.Sprintf("rejected_partner_ids = array_append(rejected_partner_ids, $%d::uuid)", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	from := make([]string, len(p.From))
	for i, s := range p.From {
		from[i] = string(s)
	}
	args = append(args, p.BookingID)
	where := []string{fmt.Sprintf("id = $%d", len(args))}
	args = append(args, pq.Array(from))
	where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	if p.RequireUnassigned {
		where = append(where, "partner_id IS NULL")
	}
	if p.RequirePartnerID != nil {
		args = append(args, *p.RequirePartnerID)
		where = append(where, fmt.Sprintf("partner_id = $%d", len(args)))
	}

	query := `UPDATE bookings SET ` + strings.Join(sets, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + bookingColumns
	return query, args
}

// Complete moves IN_PROGRESS to COMPLETED and, in the same transaction,
// credits the settlement postings, issues the invoice and bumps the
// partner's completion stats. A second call finds no IN_PROGRESS row.
func (r *BookingRepository) Complete(ctx context.Context, p CompletionParams) (*models.Booking, error) {
	var booking models.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE bookings
			SET status = 'COMPLETED',
			    completed_at = $1,
			    actual_duration = $2,
			    overtime_charge = $3,
			    total_amount = $4,
			    remaining_amount = $5,
			    platform_fee = $6,
			    commission_amount = $7,
			    updated_at = NOW()
			WHERE id = $8 AND status = 'IN_PROGRESS' AND partner_id = $9
			RETURNING ` + bookingColumns

		if err := tx.GetContext(ctx, &booking, query,
			p.CompletedAt, p.ActualDuration, p.OvertimeCharge, p.TotalAmount, p.RemainingAmount,
			p.PlatformFee, p.CommissionAmount, p.BookingID, p.PartnerID,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransitionRejected
			}
			return fmt.Errorf("failed to complete booking: %w", err)
		}

		settled, err := bookingSettledTx(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		if settled {
			return models.NewDomainError(models.ErrInvalidState, "ALREADY_SETTLED",
				"booking earnings were already posted", nil)
		}

		for _, posting := range p.Postings {
			if _, err := postLedgerEntry(ctx, tx, r.currency, posting); err != nil {
				return err
			}
		}

		if p.Invoice != nil {
			if err := insertInvoiceTx(ctx, tx, p.Invoice); err != nil {
				return err
			}
		}

		if err := incrementCompletedTx(ctx, tx, p.PartnerID); err != nil {
			return err
		}

		return insertHistoryTx(ctx, tx, booking.ID, booking.Status, &p.ActorID, p.Notes)
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Rate records the customer's rating, folds it into the partner's running
// average and moves COMPLETED to RATED, all in one transaction
func (r *BookingRepository) Rate(ctx context.Context, rating *models.Rating) (*models.Booking, error) {
	var booking models.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE bookings
			SET status = 'RATED', updated_at = NOW()
			WHERE id = $1 AND status = 'COMPLETED' AND customer_id = $2 AND partner_id = $3
			RETURNING ` + bookingColumns
		if err := tx.GetContext(ctx, &booking, query, rating.BookingID, rating.RaterID, rating.PartnerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransitionRejected
			}
			return fmt.Errorf("failed to rate booking: %w", err)
		}

		insert := `
			INSERT INTO ratings (id, booking_id, rater_id, partner_id, rating, review, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, insert,
			rating.ID, rating.BookingID, rating.RaterID, rating.PartnerID,
			rating.Rating, rating.Review, rating.CreatedAt,
		); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return models.NewDomainError(models.ErrInvalidState, "ALREADY_RATED", "booking has already been rated", nil)
			}
			return fmt.Errorf("failed to create rating: %w", err)
		}

		if err := applyRatingTx(ctx, tx, rating.PartnerID, rating.Rating); err != nil {
			return err
		}

		return insertHistoryTx(ctx, tx, booking.ID, booking.Status, &rating.RaterID, "Booking rated")
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ============================================================================
// TRANSACTION HELPERS
// ============================================================================

func insertHistoryTx(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID, status models.BookingStatus, actorID *uuid.UUID, notes string) error {
	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}
	if actorID != nil && *actorID == uuid.Nil {
		actorID = nil
	}

	query := `
		INSERT INTO booking_status_history (id, booking_id, status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`
	if _, err := tx.ExecContext(ctx, query, uuid.New(), bookingID, status, actorID, notesArg); err != nil {
		return fmt.Errorf("failed to record booking history: %w", err)
	}
	return nil
}

func insertInvoiceTx(ctx context.Context, tx *sqlx.Tx, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, invoice_number, booking_id, customer_id, subtotal, overtime_charge,
			tax_rate, tax_amount, grand_total, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.BookingID, inv.CustomerID, inv.Subtotal, inv.OvertimeCharge,
		inv.TaxRate, inv.TaxAmount, inv.GrandTotal, inv.IssuedAt,
	); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}
