package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	gerrors "github.com/go-faster/errors"

	"compensation-service/internal/models"
)

// MemoryStore keeps every table in process memory with the same contract as
// GormStore. Transactions are serialised and roll back by restoring a snapshot.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	members      map[string]models.Member
	tiers        map[string]models.Tier
	slots        map[string]models.MatrixSlot
	investments  map[string]models.Investment
	commissions  map[string]models.Commission
	reversals    map[string]models.CommissionReversal
	withdrawals  map[string]models.WithdrawalRequest
	wallets      map[string]models.Wallet
	transactions []models.Transaction
	history      []models.TierHistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			members:     map[string]models.Member{},
			tiers:       map[string]models.Tier{},
			slots:       map[string]models.MatrixSlot{},
			investments: map[string]models.Investment{},
			commissions: map[string]models.Commission{},
			reversals:   map[string]models.CommissionReversal{},
			withdrawals: map[string]models.WithdrawalRequest{},
			wallets:     map[string]models.Wallet{},
		},
		now: time.Now,
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		members:      cloneMap(s.members),
		tiers:        cloneMap(s.tiers),
		slots:        cloneMap(s.slots),
		investments:  cloneMap(s.investments),
		commissions:  cloneMap(s.commissions),
		reversals:    cloneMap(s.reversals),
		withdrawals:  cloneMap(s.withdrawals),
		wallets:      cloneMap(s.wallets),
		transactions: append([]models.Transaction(nil), s.transactions...),
		history:      append([]models.TierHistoryEntry(nil), s.history...),
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()
	if err := fn(&memTx{s: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

// Transactions returns a copy of the wallet ledger.
func (s *MemoryStore) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.state.transactions...)
}

type memTx struct {
	s *MemoryStore
}

func (t *memTx) st() *memState {
	return &t.s.state
}

func notFound(what string) error {
	return gerrors.Wrap(models.ErrNotFound, what)
}

func conflict(what string) error {
	return gerrors.Wrap(models.ErrConcurrencyConflict, what)
}

func pageIDs(ids []string, after string, limit int) []string {
	sort.Strings(ids)
	var out []string
	for _, id := range ids {
		if id <= after {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, id)
	}
	return out
}

func (t *memTx) GetMember(_ context.Context, id string) (*models.Member, error) {
	m, ok := t.st().members[id]
	if !ok {
		return nil, notFound("get member " + id)
	}
	return &m, nil
}

func (t *memTx) LockMember(ctx context.Context, id string) (*models.Member, error) {
	return t.GetMember(ctx, id)
}

func (t *memTx) CreateMember(_ context.Context, m *models.Member) error {
	if _, ok := t.st().members[m.ID]; ok {
		return conflict("create member " + m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t.s.now()
	}
	m.UpdatedAt = m.CreatedAt
	t.st().members[m.ID] = *m
	return nil
}

func (t *memTx) SaveMember(_ context.Context, m *models.Member) error {
	cur, ok := t.st().members[m.ID]
	if !ok {
		return notFound("save member " + m.ID)
	}
	cur.TierID = m.TierID
	cur.LifetimeQualifyingVolume = m.LifetimeQualifyingVolume
	cur.Status = m.Status
	cur.UpdatedAt = t.s.now()
	t.st().members[m.ID] = cur
	return nil
}

func (t *memTx) ListMemberIDs(_ context.Context, after string, limit int) ([]string, error) {
	ids := make([]string, 0, len(t.st().members))
	for id := range t.st().members {
		ids = append(ids, id)
	}
	return pageIDs(ids, after, limit), nil
}

func (t *memTx) ListReferrals(_ context.Context, referrerID string) ([]models.Member, error) {
	var out []models.Member
	for _, m := range t.st().members {
		if m.ReferrerID != nil && *m.ReferrerID == referrerID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) ListTiers(_ context.Context) ([]models.Tier, error) {
	out := make([]models.Tier, 0, len(t.st().tiers))
	for _, tier := range t.st().tiers {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (t *memTx) GetTier(_ context.Context, id string) (*models.Tier, error) {
	tier, ok := t.st().tiers[id]
	if !ok {
		return nil, notFound("get tier " + id)
	}
	return &tier, nil
}

func (t *memTx) CreateTier(_ context.Context, tier *models.Tier) error {
	for _, existing := range t.st().tiers {
		if existing.ID == tier.ID || (existing.Key == tier.Key && existing.Version == tier.Version) {
			return conflict("create tier " + tier.Key)
		}
	}
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = t.s.now()
	}
	t.st().tiers[tier.ID] = *tier
	return nil
}

func (t *memTx) ListChildSlots(_ context.Context, ownerID string) ([]models.MatrixSlot, error) {
	var out []models.MatrixSlot
	for _, slot := range t.st().slots {
		if slot.OwnerID == ownerID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *memTx) GetSlotByOccupant(_ context.Context, occupantID string) (*models.MatrixSlot, error) {
	for _, slot := range t.st().slots {
		if slot.OccupantID == occupantID {
			return &slot, nil
		}
	}
	return nil, notFound("get slot of " + occupantID)
}

func (t *memTx) CreateSlot(_ context.Context, s *models.MatrixSlot) error {
	for _, slot := range t.st().slots {
		if slot.ID == s.ID ||
			slot.OccupantID == s.OccupantID ||
			(slot.OwnerID == s.OwnerID && slot.Position == s.Position) {
			return conflict("create matrix slot")
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.s.now()
	}
	t.st().slots[s.ID] = *s
	return nil
}

func (t *memTx) GetInvestment(_ context.Context, id string) (*models.Investment, error) {
	inv, ok := t.st().investments[id]
	if !ok {
		return nil, notFound("get investment " + id)
	}
	return &inv, nil
}

func (t *memTx) LockInvestment(ctx context.Context, id string) (*models.Investment, error) {
	return t.GetInvestment(ctx, id)
}

func (t *memTx) CreateInvestment(_ context.Context, inv *models.Investment) error {
	if _, ok := t.st().investments[inv.ID]; ok {
		return conflict("create investment " + inv.ID)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = t.s.now()
	}
	t.st().investments[inv.ID] = *inv
	return nil
}

func (t *memTx) SaveInvestment(_ context.Context, inv *models.Investment) error {
	cur, ok := t.st().investments[inv.ID]
	if !ok {
		return notFound("save investment " + inv.ID)
	}
	cur.Status = inv.Status
	cur.CommissionsCalculatedAt = inv.CommissionsCalculatedAt
	t.st().investments[inv.ID] = cur
	return nil
}

func (t *memTx) ListUncalculatedInvestmentIDs(_ context.Context, after string, limit int) ([]string, error) {
	var ids []string
	for id, inv := range t.st().investments {
		if inv.Status == models.InvestmentCompleted && inv.CommissionsCalculatedAt == nil {
			ids = append(ids, id)
		}
	}
	return pageIDs(ids, after, limit), nil
}

func (t *memTx) ListCommissionsByInvestment(_ context.Context, investmentID string) ([]models.Commission, error) {
	var out []models.Commission
	for _, c := range t.st().commissions {
		if c.InvestmentID == investmentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Level < out[j].Level
	})
	return out, nil
}

func (t *memTx) CreateCommissions(_ context.Context, cs []models.Commission) error {
	for i := range cs {
		c := &cs[i]
		for _, existing := range t.st().commissions {
			if existing.ID == c.ID ||
				(existing.InvestmentID == c.InvestmentID && existing.Kind == c.Kind && existing.Level == c.Level) {
				return conflict("create commissions")
			}
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = t.s.now()
		}
		t.st().commissions[c.ID] = *c
	}
	return nil
}

func (t *memTx) SaveCommission(_ context.Context, c *models.Commission) error {
	cur, ok := t.st().commissions[c.ID]
	if !ok {
		return notFound("save commission " + c.ID)
	}
	cur.Status = c.Status
	t.st().commissions[c.ID] = cur
	return nil
}

func (t *memTx) CreateReversal(_ context.Context, r *models.CommissionReversal) error {
	for _, existing := range t.st().reversals {
		if existing.ID == r.ID || existing.CommissionID == r.CommissionID {
			return conflict("create commission reversal")
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.s.now()
	}
	t.st().reversals[r.ID] = *r
	return nil
}

func (t *memTx) ListReversalsByInvestment(_ context.Context, investmentID string) ([]models.CommissionReversal, error) {
	var out []models.CommissionReversal
	for _, r := range t.st().reversals {
		if c, ok := t.st().commissions[r.CommissionID]; ok && c.InvestmentID == investmentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommissionID < out[j].CommissionID })
	return out, nil
}

func (t *memTx) GetWithdrawal(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	w, ok := t.st().withdrawals[id]
	if !ok {
		return nil, notFound("get withdrawal " + id)
	}
	return &w, nil
}

func (t *memTx) LockWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *memTx) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	if _, ok := t.st().withdrawals[w.ID]; ok {
		return conflict("create withdrawal " + w.ID)
	}
	w.CreatedAt = t.s.now()
	w.UpdatedAt = w.CreatedAt
	t.st().withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) SaveWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	cur, ok := t.st().withdrawals[w.ID]
	if !ok {
		return notFound("save withdrawal " + w.ID)
	}
	cur.ClawbackAppliedAt = w.ClawbackAppliedAt
	cur.UpdatedAt = t.s.now()
	t.st().withdrawals[w.ID] = cur
	return nil
}

func (t *memTx) ListPendingClawbackIDs(_ context.Context, after string, limit int) ([]string, error) {
	var ids []string
	for id, w := range t.st().withdrawals {
		if w.ClawbackAppliedAt == nil {
			ids = append(ids, id)
		}
	}
	return pageIDs(ids, after, limit), nil
}

func (t *memTx) LockWallet(_ context.Context, memberID string) (*models.Wallet, error) {
	w, ok := t.st().wallets[memberID]
	if !ok {
		return nil, notFound("lock wallet " + memberID)
	}
	return &w, nil
}

func (t *memTx) SaveWallet(_ context.Context, w *models.Wallet) error {
	now := t.s.now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	t.st().wallets[w.MemberID] = *w
	return nil
}

func (t *memTx) CreateTransaction(_ context.Context, trx *models.Transaction) error {
	trx.ID = len(t.st().transactions) + 1
	if trx.CreatedAt.IsZero() {
		trx.CreatedAt = t.s.now()
	}
	t.st().transactions = append(t.st().transactions, *trx)
	return nil
}

func (t *memTx) AppendTierHistory(_ context.Context, e *models.TierHistoryEntry) error {
	e.ID = len(t.st().history) + 1
	t.st().history = append(t.st().history, *e)
	return nil
}

func (t *memTx) ListTierHistory(_ context.Context, memberID string) ([]models.TierHistoryEntry, error) {
	var out []models.TierHistoryEntry
	for _, e := range t.st().history {
		if e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out, nil
}
