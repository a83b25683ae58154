package repository

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"compensation-service/internal/models"
)

type GormStore struct {
	DB *gorm.DB
}

// NewGormStore expects a handle opened with TranslateError so duplicate keys
// surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case gerrors.Is(err, gorm.ErrRecordNotFound):
		return gerrors.Wrap(models.ErrNotFound, what)
	case gerrors.Is(err, gorm.ErrDuplicatedKey):
		return gerrors.Wrap(models.ErrConcurrencyConflict, what)
	}
	return gerrors.Wrap(err, what)
}

func (t *gormTx) q(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) locked(ctx context.Context) *gorm.DB {
	return t.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) GetMember(ctx context.Context, id string) (*models.Member, error) {
	var m models.Member
	if err := t.q(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err, "get member "+id)
	}
	return &m, nil
}

func (t *gormTx) LockMember(ctx context.Context, id string) (*models.Member, error) {
	var m models.Member
	if err := t.locked(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err, "lock member "+id)
	}
	return &m, nil
}

func (t *gormTx) CreateMember(ctx context.Context, m *models.Member) error {
	return translate(t.q(ctx).Create(m).Error, "create member")
}

func (t *gormTx) SaveMember(ctx context.Context, m *models.Member) error {
	return translate(t.q(ctx).Model(&models.Member{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"tier_id":                    m.TierID,
		"lifetime_qualifying_volume": m.LifetimeQualifyingVolume,
		"status":                     m.Status,
	}).Error, "save member "+m.ID)
}

func (t *gormTx) ListMemberIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var ids []string
	err := t.q(ctx).Model(&models.Member{}).
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, translate(err, "list member ids")
}

func (t *gormTx) ListReferrals(ctx context.Context, referrerID string) ([]models.Member, error) {
	var ms []models.Member
	err := t.q(ctx).Where("referrer_id = ?", referrerID).Order("created_at ASC, id ASC").Find(&ms).Error
	return ms, translate(err, "list referrals")
}

func (t *gormTx) ListTiers(ctx context.Context) ([]models.Tier, error) {
	var ts []models.Tier
	err := t.q(ctx).Order("tier_order ASC, version ASC").Find(&ts).Error
	return ts, translate(err, "list tiers")
}

func (t *gormTx) GetTier(ctx context.Context, id string) (*models.Tier, error) {
	var tier models.Tier
	if err := t.q(ctx).Where("id = ?", id).First(&tier).Error; err != nil {
		return nil, translate(err, "get tier "+id)
	}
	return &tier, nil
}

func (t *gormTx) CreateTier(ctx context.Context, tier *models.Tier) error {
	return translate(t.q(ctx).Create(tier).Error, "create tier")
}

func (t *gormTx) ListChildSlots(ctx context.Context, ownerID string) ([]models.MatrixSlot, error) {
	var slots []models.MatrixSlot
	err := t.q(ctx).Where("owner_id = ?", ownerID).Order("position ASC").Find(&slots).Error
	return slots, translate(err, "list child slots")
}

func (t *gormTx) GetSlotByOccupant(ctx context.Context, occupantID string) (*models.MatrixSlot, error) {
	var slot models.MatrixSlot
	if err := t.q(ctx).Where("occupant_id = ?", occupantID).First(&slot).Error; err != nil {
		return nil, translate(err, "get slot of "+occupantID)
	}
	return &slot, nil
}

func (t *gormTx) CreateSlot(ctx context.Context, s *models.MatrixSlot) error {
	return translate(t.q(ctx).Create(s).Error, "create matrix slot")
}

func (t *gormTx) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	var inv models.Investment
	if err := t.q(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, translate(err, "get investment "+id)
	}
	return &inv, nil
}

func (t *gormTx) LockInvestment(ctx context.Context, id string) (*models.Investment, error) {
	var inv models.Investment
	if err := t.locked(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, translate(err, "lock investment "+id)
	}
	return &inv, nil
}

func (t *gormTx) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	return translate(t.q(ctx).Create(inv).Error, "create investment")
}

func (t *gormTx) SaveInvestment(ctx context.Context, inv *models.Investment) error {
	return translate(t.q(ctx).Model(&models.Investment{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
		"status":                    inv.Status,
		"commissions_calculated_at": inv.CommissionsCalculatedAt,
	}).Error, "save investment "+inv.ID)
}

func (t *gormTx) ListUncalculatedInvestmentIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var ids []string
	err := t.q(ctx).Model(&models.Investment{}).
		Where("status = ? AND commissions_calculated_at IS NULL AND id > ?", models.InvestmentCompleted, after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, translate(err, "list uncalculated investments")
}

func (t *gormTx) ListCommissionsByInvestment(ctx context.Context, investmentID string) ([]models.Commission, error) {
	var cs []models.Commission
	err := t.q(ctx).Where("investment_id = ?", investmentID).Order("kind ASC, level ASC").Find(&cs).Error
	return cs, translate(err, "list commissions")
}

func (t *gormTx) CreateCommissions(ctx context.Context, cs []models.Commission) error {
	if len(cs) == 0 {
		return nil
	}
	return translate(t.q(ctx).Create(&cs).Error, "create commissions")
}

func (t *gormTx) SaveCommission(ctx context.Context, c *models.Commission) error {
	return translate(t.q(ctx).Model(&models.Commission{}).Where("id = ?", c.ID).
		Update("status", c.Status).Error, "save commission "+c.ID)
}

func (t *gormTx) CreateReversal(ctx context.Context, r *models.CommissionReversal) error {
	return translate(t.q(ctx).Create(r).Error, "create commission reversal")
}

func (t *gormTx) ListReversalsByInvestment(ctx context.Context, investmentID string) ([]models.CommissionReversal, error) {
	var rs []models.CommissionReversal
	err := t.q(ctx).
		Joins("JOIN commissions ON commissions.id = commission_reversals.commission_id").
		Where("commissions.investment_id = ?", investmentID).
		Find(&rs).Error
	return rs, translate(err, "list reversals")
}

func (t *gormTx) GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := t.q(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, translate(err, "get withdrawal "+id)
	}
	return &w, nil
}

func (t *gormTx) LockWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := t.locked(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, translate(err, "lock withdrawal "+id)
	}
	return &w, nil
}

func (t *gormTx) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return translate(t.q(ctx).Create(w).Error, "create withdrawal")
}

func (t *gormTx) SaveWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return translate(t.q(ctx).Model(&models.WithdrawalRequest{}).Where("id = ?", w.ID).
		Update("clawback_applied_at", w.ClawbackAppliedAt).Error, "save withdrawal "+w.ID)
}

func (t *gormTx) ListPendingClawbackIDs(ctx context.Context, after string, limit int) ([]string, error) {
	var ids []string
	err := t.q(ctx).Model(&models.WithdrawalRequest{}).
		Where("clawback_applied_at IS NULL AND id > ?", after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, translate(err, "list pending clawbacks")
}

func (t *gormTx) LockWallet(ctx context.Context, memberID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := t.locked(ctx).Where("member_id = ?", memberID).First(&w).Error; err != nil {
		return nil, translate(err, "lock wallet "+memberID)
	}
	return &w, nil
}

func (t *gormTx) SaveWallet(ctx context.Context, w *models.Wallet) error {
	return translate(t.q(ctx).Save(w).Error, "save wallet "+w.MemberID)
}

func (t *gormTx) CreateTransaction(ctx context.Context, trx *models.Transaction) error {
	return translate(t.q(ctx).Create(trx).Error, "create transaction")
}

func (t *gormTx) AppendTierHistory(ctx context.Context, e *models.TierHistoryEntry) error {
	return translate(t.q(ctx).Create(e).Error, "append tier history")
}

func (t *gormTx) ListTierHistory(ctx context.Context, memberID string) ([]models.TierHistoryEntry, error) {
	var es []models.TierHistoryEntry
	err := t.q(ctx).Where("member_id = ?", memberID).Order("changed_at ASC, id ASC").Find(&es).Error
	return es, translate(err, "list tier history")
}
