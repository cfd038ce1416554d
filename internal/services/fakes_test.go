package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/servicehub/booking-engine/internal/database"
	"github.com/servicehub/booking-engine/internal/models"
	"github.com/servicehub/booking-engine/pkg/idgen"
)

func fixedID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// store is an in-memory stand-in for Postgres. One mutex serializes every
// call the way row locks serialize the guarded UPDATEs.
type store struct {
	mu           sync.Mutex
	bookings     map[uuid.UUID]*models.Booking
	items        map[uuid.UUID][]models.BookingItem
	history      map[uuid.UUID][]models.BookingStatusHistory
	invoices     map[uuid.UUID]*models.Invoice
	ratings      map[uuid.UUID]*models.Rating
	partners     map[uuid.UUID]*models.ServicePartner
	associations []models.PartnerAssociation
	businesses   map[uuid.UUID]*models.BusinessPartner
	services     map[uuid.UUID]*models.Service
	wallets      map[uuid.UUID]*models.Wallet
	transactions []models.Transaction
	withdrawals  map[uuid.UUID]*models.WithdrawalRequest
	users        []models.User

	// rejectTransitions makes every guarded status update fail
	rejectTransitions bool
}

func newStore() *store {
	return &store{
		bookings:    map[uuid.UUID]*models.Booking{},
		items:       map[uuid.UUID][]models.BookingItem{},
		history:     map[uuid.UUID][]models.BookingStatusHistory{},
		invoices:    map[uuid.UUID]*models.Invoice{},
		ratings:     map[uuid.UUID]*models.Rating{},
		partners:    map[uuid.UUID]*models.ServicePartner{},
		businesses:  map[uuid.UUID]*models.BusinessPartner{},
		services:    map[uuid.UUID]*models.Service{},
		wallets:     map[uuid.UUID]*models.Wallet{},
		withdrawals: map[uuid.UUID]*models.WithdrawalRequest{},
	}
}

func (s *store) booking(id uuid.UUID) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.copyBooking(s.bookings[id])
	return b
}

func (s *store) partner(id uuid.UUID) models.ServicePartner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.partners[id]
}

func (s *store) balance(userID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[userID]; ok {
		return w.Balance
	}
	return decimal.Zero
}

func (s *store) historyOf(id uuid.UUID) []models.BookingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingStatus
	for _, h := range s.history[id] {
		out = append(out, h.Status)
	}
	return out
}

func (s *store) transactionsFor(bookingID uuid.UUID) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.transactions {
		if t.BookingID != nil && *t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out
}

func (s *store) copyBooking(b *models.Booking) *models.Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.BeforeImages = append(models.StringArray{}, b.BeforeImages...)
	c.AfterImages = append(models.StringArray{}, b.AfterImages...)
	c.RejectedPartnerIDs = append(models.UUIDArray{}, b.RejectedPartnerIDs...)
	c.Items = append([]models.BookingItem{}, s.items[b.ID]...)
	return &c
}

// applyPostings validates every posting before mutating any wallet
func (s *store) applyPostings(postings []models.LedgerPosting) error {
	next := map[uuid.UUID]models.Wallet{}
	var pending []models.Transaction
	for _, p := range postings {
		w, ok := next[p.UserID]
		if !ok {
			if existing, found := s.wallets[p.UserID]; found {
				w = *existing
			} else {
				w = models.Wallet{ID: uuid.New(), UserID: p.UserID, Currency: "INR"}
			}
		}
		after, err := w.Apply(p.Op, p.Amount)
		if err != nil {
			return err
		}
		pending = append(pending, models.Transaction{
			ID:            uuid.New(),
			WalletID:      w.ID,
			UserID:        p.UserID,
			Type:          p.Type,
			Amount:        p.Amount,
			BalanceBefore: w.Balance,
			BalanceAfter:  after.Balance,
			LockedAfter:   after.LockedBalance,
			Description:   p.Description,
			BookingID:     p.BookingID,
			CreatedAt:     time.Now(),
		})
		next[p.UserID] = after
	}
	for userID, w := range next {
		w := w
		s.wallets[userID] = &w
	}
	s.transactions = append(s.transactions, pending...)
	return nil
}

func (s *store) addHistory(id uuid.UUID, status models.BookingStatus, actorID *uuid.UUID, notes string) {
	s.history[id] = append(s.history[id], models.BookingStatusHistory{
		ID:        uuid.New(),
		BookingID: id,
		Status:    status,
		ActorID:   actorID,
		Notes:     stringPtr(notes),
		CreatedAt: time.Now(),
	})
}

func recomputeCompletionRate(p *models.ServicePartner) {
	if p.TotalBookings > 0 {
		p.CompletionRate = float64(p.CompletedBookings) / float64(p.TotalBookings) * 100
	}
}

// ---------------------------------------------------------------------------
// BookingStore

type fakeBookings struct{ *store }

func (f fakeBookings) Create(ctx context.Context, booking *models.Booking, items []models.BookingItem, payment *models.LedgerPosting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment != nil {
		if err := f.applyPostings([]models.LedgerPosting{*payment}); err != nil {
			return err
		}
	}
	b := *booking
	b.Items = nil
	f.bookings[b.ID] = &b
	f.items[b.ID] = append([]models.BookingItem{}, items...)
	f.addHistory(b.ID, models.BookingStatusPending, &b.CustomerID, "Booking created")
	if b.Status != models.BookingStatusPending {
		f.addHistory(b.ID, b.Status, &b.CustomerID, "")
	}
	return nil
}

func (f fakeBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrNotFound)
	}
	return f.copyBooking(b), nil
}

func (f fakeBookings) GetHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BookingStatusHistory{}, f.history[bookingID]...), nil
}

func (f fakeBookings) GetInvoice(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[bookingID]
	if !ok {
		return nil, fmt.Errorf("invoice for booking %s: %w", bookingID, models.ErrNotFound)
	}
	c := *inv
	return &c, nil
}

func (f fakeBookings) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && b.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.PartnerID != nil && !b.AssignedTo(*filter.PartnerID) {
			continue
		}
		if filter.BusinessPartnerID != nil && (b.BusinessPartnerID == nil || *b.BusinessPartnerID != *filter.BusinessPartnerID) {
			continue
		}
		out = append(out, *f.copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f fakeBookings) ListClaimable(ctx context.Context, categoryID, partnerID uuid.UUID, limit int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		c := f.copyBooking(b)
		if b.PartnerID != nil || b.BusinessPartnerID != nil || c.HasRejected(partnerID) {
			continue
		}
		if b.Status != models.BookingStatusSearchingPartner && b.Status != models.BookingStatusPending {
			continue
		}
		if item, ok := c.PrimaryItem(); !ok || item.CategoryID != categoryID {
			continue
		}
		out = append(out, *c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeBookings) ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time, limit int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status == status && b.UpdatedAt.Before(cutoff) {
			out = append(out, *f.copyBooking(b))
		}
	}
	return out, nil
}

func (f fakeBookings) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status == models.BookingStatusPending && b.PaymentStatus == models.PaymentStatusPending && b.CreatedAt.Before(cutoff) {
			out = append(out, *f.copyBooking(b))
		}
	}
	return out, nil
}

func (f fakeBookings) Transition(ctx context.Context, p database.TransitionParams) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[p.BookingID]
	if !ok || f.rejectTransitions {
		return nil, database.ErrTransitionRejected
	}
	allowed := false
	for _, s := range p.From {
		if b.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, database.ErrTransitionRejected
	}
	if p.RequireUnassigned && b.PartnerID != nil {
		return nil, database.ErrTransitionRejected
	}
	if p.RequirePartnerID != nil && !b.AssignedTo(*p.RequirePartnerID) {
		return nil, database.ErrTransitionRejected
	}

	if err := f.applyPostings(p.Postings); err != nil {
		return nil, err
	}

	p.Changes.Apply(b)
	if p.To != "" {
		b.Status = p.To
	}
	b.UpdatedAt = time.Now()

	if p.CountAcceptanceFor != nil {
		if partner, ok := f.partners[*p.CountAcceptanceFor]; ok {
			partner.TotalBookings++
			recomputeCompletionRate(partner)
		}
	}
	if p.To != "" {
		f.addHistory(b.ID, b.Status, p.ActorID, p.Notes)
	}
	return f.copyBooking(b), nil
}

func (f fakeBookings) Complete(ctx context.Context, p database.CompletionParams) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[p.BookingID]
	if !ok || b.Status != models.BookingStatusInProgress || !b.AssignedTo(p.PartnerID) {
		return nil, database.ErrTransitionRejected
	}
	for _, t := range f.transactions {
		if t.BookingID != nil && *t.BookingID == p.BookingID &&
			(t.Type == models.TransactionEarning || t.Type == models.TransactionCommission) {
			return nil, models.NewDomainError(models.ErrInvalidState, "ALREADY_SETTLED", "already settled", nil)
		}
	}
	if err := f.applyPostings(p.Postings); err != nil {
		return nil, err
	}

	completedAt := p.CompletedAt
	actual := p.ActualDuration
	b.Status = models.BookingStatusCompleted
	b.CompletedAt = &completedAt
	b.ActualDuration = &actual
	b.OvertimeCharge = p.OvertimeCharge
	b.TotalAmount = p.TotalAmount
	b.RemainingAmount = p.RemainingAmount
	b.PlatformFee = p.PlatformFee
	b.CommissionAmount = p.CommissionAmount

	if p.Invoice != nil {
		inv := *p.Invoice
		f.invoices[b.ID] = &inv
	}
	if partner, ok := f.partners[p.PartnerID]; ok {
		partner.CompletedBookings++
		recomputeCompletionRate(partner)
	}
	f.addHistory(b.ID, b.Status, &p.ActorID, p.Notes)
	return f.copyBooking(b), nil
}

func (f fakeBookings) Rate(ctx context.Context, rating *models.Rating) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[rating.BookingID]
	if !ok || b.Status != models.BookingStatusCompleted || b.CustomerID != rating.RaterID || !b.AssignedTo(rating.PartnerID) {
		return nil, database.ErrTransitionRejected
	}
	if _, exists := f.ratings[rating.BookingID]; exists {
		return nil, models.NewDomainError(models.ErrInvalidState, "ALREADY_RATED", "booking has already been rated", nil)
	}
	r := *rating
	f.ratings[rating.BookingID] = &r

	if partner, ok := f.partners[rating.PartnerID]; ok {
		partner.AvgRating = (partner.AvgRating*float64(partner.TotalRatings) + float64(rating.Rating)) / float64(partner.TotalRatings+1)
		partner.TotalRatings++
	}
	b.Status = models.BookingStatusRated
	f.addHistory(b.ID, b.Status, &rating.RaterID, "Booking rated")
	return f.copyBooking(b), nil
}

// ---------------------------------------------------------------------------
// PartnerStore

type fakePartners struct{ *store }

func (f fakePartners) GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partners[id]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", id, models.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (f fakePartners) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ServicePartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.partners {
		if p.UserID == userID {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("partner %s: %w", userID, models.ErrNotFound)
}

func (f fakePartners) FindAvailableByCategory(ctx context.Context, categoryID uuid.UUID, businessPartnerID *uuid.UUID) ([]models.ServicePartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ServicePartner
	for _, p := range f.partners {
		if p.CategoryID != categoryID || p.AvailabilityStatus != models.AvailabilityAvailable || !p.IsKYCApproved() || !p.HasLocation() {
			continue
		}
		if businessPartnerID != nil && !f.isMember(*businessPartnerID, p.ID) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f fakePartners) isMember(businessID, partnerID uuid.UUID) bool {
	for _, a := range f.associations {
		if a.BusinessPartnerID == businessID && a.ServicePartnerID == partnerID && a.Status == models.AssociationActive {
			return true
		}
	}
	return false
}

func (f fakePartners) GetActiveAssociation(ctx context.Context, businessPartnerID, partnerID uuid.UUID) (*models.PartnerAssociation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.associations {
		if a.BusinessPartnerID == businessPartnerID && a.ServicePartnerID == partnerID && a.Status == models.AssociationActive {
			c := a
			return &c, nil
		}
	}
	return nil, fmt.Errorf("association: %w", models.ErrNotFound)
}

func (f fakePartners) UpdateAvailability(ctx context.Context, partnerID uuid.UUID, status models.AvailabilityStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partners[partnerID]
	if !ok {
		return fmt.Errorf("partner: %w", models.ErrNotFound)
	}
	p.AvailabilityStatus = status
	return nil
}

func (f fakePartners) UpdateLocation(ctx context.Context, partnerID uuid.UUID, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partners[partnerID]
	if !ok {
		return fmt.Errorf("partner: %w", models.ErrNotFound)
	}
	p.CurrentLatitude, p.CurrentLongitude = &lat, &lng
	now := time.Now()
	p.LocationUpdatedAt = &now
	return nil
}

func (f fakePartners) UpdateKYCStatus(ctx context.Context, partnerID uuid.UUID, status models.KYCStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partners[partnerID]
	if !ok {
		return fmt.Errorf("partner: %w", models.ErrNotFound)
	}
	p.KYCStatus = status
	return nil
}

// ---------------------------------------------------------------------------
// BusinessPartnerStore, ServiceCatalog, UserStore

type fakeBusinesses struct{ *store }

func (f fakeBusinesses) GetByID(ctx context.Context, id uuid.UUID) (*models.BusinessPartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.businesses[id]
	if !ok {
		return nil, fmt.Errorf("business partner %s: %w", id, models.ErrNotFound)
	}
	c := *b
	return &c, nil
}

func (f fakeBusinesses) GetByOwnerUserID(ctx context.Context, userID uuid.UUID) (*models.BusinessPartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.businesses {
		if b.OwnerUserID == userID {
			c := *b
			return &c, nil
		}
	}
	return nil, fmt.Errorf("business partner for user %s: %w", userID, models.ErrNotFound)
}

type fakeCatalog struct{ *store }

func (f fakeCatalog) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, models.ErrNotFound)
	}
	c := *s
	return &c, nil
}

type fakeUsers struct{ *store }

func (f fakeUsers) FindFirstByRole(ctx context.Context, role string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		for _, r := range u.Roles {
			if r == role {
				c := u
				return &c, nil
			}
		}
	}
	return nil, fmt.Errorf("user with role %s: %w", role, models.ErrNotFound)
}

// ---------------------------------------------------------------------------
// WalletStore

type fakeWallets struct{ *store }

func (f fakeWallets) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, Currency: "INR"}
		f.wallets[userID] = w
	}
	c := *w
	return &c, nil
}

func (f fakeWallets) Post(ctx context.Context, posting models.LedgerPosting) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.applyPostings([]models.LedgerPosting{posting}); err != nil {
		return nil, err
	}
	t := f.transactions[len(f.transactions)-1]
	return &t, nil
}

func (f fakeWallets) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for i := len(f.transactions) - 1; i >= 0; i-- {
		if f.transactions[i].UserID == userID {
			out = append(out, f.transactions[i])
		}
	}
	return out, nil
}

func (f fakeWallets) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.applyPostings([]models.LedgerPosting{{UserID: userID, Op: models.LedgerLock, Type: models.TransactionWithdrawalLock, Amount: amount}}); err != nil {
		return nil, err
	}
	w := &models.WithdrawalRequest{ID: uuid.New(), UserID: userID, Amount: amount, Status: models.WithdrawalPending, CreatedAt: time.Now()}
	f.withdrawals[w.ID] = w
	c := *w
	return &c, nil
}

func (f fakeWallets) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
	}
	c := *w
	return &c, nil
}

func (f fakeWallets) ListWithdrawals(ctx context.Context, status *models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range f.withdrawals {
		if status == nil || w.Status == *status {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f fakeWallets) settleWithdrawal(id, processedBy uuid.UUID, op models.LedgerOp, kind models.TransactionType, status models.WithdrawalStatus) (*models.WithdrawalRequest, error) {
	w, ok := f.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
	}
	if w.Status != models.WithdrawalPending {
		return nil, models.NewDomainError(models.ErrInvalidState, "WITHDRAWAL_PROCESSED",
			fmt.Sprintf("withdrawal is already %s", w.Status), nil)
	}
	if err := f.applyPostings([]models.LedgerPosting{{UserID: w.UserID, Op: op, Type: kind, Amount: w.Amount}}); err != nil {
		return nil, err
	}
	now := time.Now()
	w.Status = status
	w.ProcessedBy = &processedBy
	w.ProcessedAt = &now
	c := *w
	return &c, nil
}

func (f fakeWallets) CompleteWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reference string) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.settleWithdrawal(id, processedBy, models.LedgerRelease, models.TransactionPayout, models.WithdrawalCompleted)
	if err != nil {
		return nil, err
	}
	f.withdrawals[id].Reference = &reference
	w.Reference = &reference
	return w, nil
}

func (f fakeWallets) RejectWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.settleWithdrawal(id, processedBy, models.LedgerUnlock, models.TransactionWithdrawalUnlock, models.WithdrawalRejected)
	if err != nil {
		return nil, err
	}
	f.withdrawals[id].FailureReason = &reason
	w.FailureReason = &reason
	return w, nil
}

// ---------------------------------------------------------------------------
// collaborators

type sentNotice struct {
	UserID uuid.UUID
	Kind   models.NotificationType
	Data   map[string]interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentNotice
	fail  bool
	panic bool
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) error {
	if n.panic {
		panic("transport exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{UserID: userID, Kind: kind, Data: data})
	if n.fail {
		return fmt.Errorf("transport down")
	}
	return nil
}

func (n *recordingNotifier) to(userID uuid.UUID, kind models.NotificationType) []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotice
	for _, s := range n.sent {
		if s.UserID == userID && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, bookingID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("queue unavailable")
	}
	d.ids = append(d.ids, bookingID)
	return nil
}

func (d *recordingDispatcher) count(id uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, x := range d.ids {
		if x == id {
			n++
		}
	}
	return n
}

// fakePayments honours idempotency keys the way the provider does. A non-nil
// release channel holds every call until the test closes it.
type fakePayments struct {
	mu      sync.Mutex
	calls   []RefundRequest
	refunds []RefundRequest
	issued  map[string]*RefundResult
	err     error
	release chan struct{}
}

func (p *fakePayments) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	release := p.release
	p.mu.Unlock()
	if release != nil {
		<-release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if prev, ok := p.issued[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		result := *prev
		return &result, nil
	}
	p.refunds = append(p.refunds, req)
	result := &RefundResult{Reference: "re_" + req.BookingID.String()[:8], Status: "succeeded"}
	if p.issued == nil {
		p.issued = map[string]*RefundResult{}
	}
	p.issued[req.IdempotencyKey] = result
	out := *result
	return &out, nil
}

func (p *fakePayments) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fixedOTP struct{}

func (fixedOTP) Generate(length int) (string, error) {
	if length == 4 {
		return "4321", nil
	}
	return "654321", nil
}

// ---------------------------------------------------------------------------
// environment

// Service site and partner positions around it (Bengaluru)
const (
	siteLat = 12.9716
	siteLng = 77.5946
)

type testEnv struct {
	store      *store
	svc        *BookingService
	settlement *SettlementService
	matching   *MatchingService
	notifier   *recordingNotifier
	dispatcher *recordingDispatcher
	payments   *fakePayments
	logs       *test.Hook
	clock      time.Time

	customer   models.Actor
	admin      models.Actor
	categoryID uuid.UUID
	serviceID  uuid.UUID
	platformID uuid.UUID
}

func newTestEnv() *testEnv {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	st := newStore()
	env := &testEnv{
		store:      st,
		logs:       hook,
		notifier:   &recordingNotifier{},
		dispatcher: &recordingDispatcher{},
		payments:   &fakePayments{},
		clock:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		customer:   models.Actor{UserID: fixedID(100), Roles: []string{models.RoleCustomer}},
		admin:      models.Actor{UserID: fixedID(900), Roles: []string{models.RoleAdmin}},
		categoryID: fixedID(500),
		serviceID:  fixedID(501),
		platformID: fixedID(999),
	}

	st.users = append(st.users, models.User{ID: env.platformID, Roles: []string{models.RoleSuperAdmin}, Status: "active"})
	st.services[env.serviceID] = &models.Service{
		ID:              env.serviceID,
		CategoryID:      env.categoryID,
		Name:            "Deep cleaning",
		BasePrice:       d("1000"),
		PriceMultiplier: d("1.0"),
		DurationMinutes: 60,
		IsActive:        true,
	}

	env.matching = NewMatchingService(fakePartners{st}, 10, logger)
	env.settlement = NewSettlementService(fakePartners{st}, fakeBusinesses{st}, fakeUsers{st}, d("0.15"), nil, logger)

	ids, err := idgen.NewGenerator(1)
	if err != nil {
		panic(err)
	}
	svc, err := NewBookingService(BookingServiceDeps{
		Bookings:   fakeBookings{st},
		Partners:   fakePartners{st},
		Businesses: fakeBusinesses{st},
		Catalog:    fakeCatalog{st},
		Matching:   env.matching,
		Settlement: env.settlement,
		Payments:   env.payments,
		Dispatcher: env.dispatcher,
		Notifier:   env.notifier,
		IDs:        ids,
		OTP:        fixedOTP{},
		Policy:     DefaultBookingPolicy(),
		Currency:   "INR",
		Logger:     logger,
	})
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return env.clock }
	env.svc = svc
	return env
}

// addPartner registers an available, verified partner dLat degrees north of the site
func (e *testEnv) addPartner(n int, dLat float64) (*models.ServicePartner, models.Actor) {
	lat, lng := siteLat+dLat, siteLng
	p := &models.ServicePartner{
		ID:                 fixedID(200 + n),
		UserID:             fixedID(300 + n),
		CategoryID:         e.categoryID,
		AvailabilityStatus: models.AvailabilityAvailable,
		KYCStatus:          models.KYCStatusApproved,
		CurrentLatitude:    &lat,
		CurrentLongitude:   &lng,
		ServiceRadiusKm:    10,
		AvgRating:          4.0,
		TotalRatings:       9,
	}
	e.store.mu.Lock()
	e.store.partners[p.ID] = p
	e.store.mu.Unlock()
	return p, models.Actor{UserID: p.UserID, Roles: []string{models.RolePartner}}
}

func (e *testEnv) addBusiness(n int, rate string, members ...uuid.UUID) (*models.BusinessPartner, models.Actor) {
	b := &models.BusinessPartner{
		ID:             fixedID(600 + n),
		OwnerUserID:    fixedID(700 + n),
		BusinessName:   fmt.Sprintf("Team %d", n),
		CommissionRate: d(rate),
		IsActive:       true,
	}
	e.store.mu.Lock()
	e.store.businesses[b.ID] = b
	for _, m := range members {
		e.store.associations = append(e.store.associations, models.PartnerAssociation{
			ID:                uuid.New(),
			BusinessPartnerID: b.ID,
			ServicePartnerID:  m,
			Status:            models.AssociationActive,
		})
	}
	e.store.mu.Unlock()
	return b, models.Actor{UserID: b.OwnerUserID, Roles: []string{models.RoleBusinessPartner}}
}

func (e *testEnv) fund(userID uuid.UUID, amount string) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	if err := e.store.applyPostings([]models.LedgerPosting{{
		UserID: userID, Op: models.LedgerCredit, Type: models.TransactionWalletTopup, Amount: d(amount),
	}}); err != nil {
		panic(err)
	}
}

func (e *testEnv) createRequest() *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		ServiceID:      e.serviceID,
		ScheduledAt:    e.clock.Add(48 * time.Hour),
		ServiceAddress: "12 MG Road",
		Latitude:       siteLat,
		Longitude:      siteLng,
	}
}
