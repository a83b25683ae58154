package repository

import (
	"context"

	"compensation-service/internal/models"
)

// Store runs units of work. Everything an engine reads and writes for one
// event goes through a single Tx so the unit commits or rolls back as a whole.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence surface the engines need. Lock* methods take a row
// lock held until the transaction ends. Lookups of missing rows return
// models.ErrNotFound; unique index violations return models.ErrConcurrencyConflict.
type Tx interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)
	LockMember(ctx context.Context, id string) (*models.Member, error)
	CreateMember(ctx context.Context, m *models.Member) error
	SaveMember(ctx context.Context, m *models.Member) error
	ListMemberIDs(ctx context.Context, after string, limit int) ([]string, error)
	ListReferrals(ctx context.Context, referrerID string) ([]models.Member, error)

	ListTiers(ctx context.Context) ([]models.Tier, error)
	GetTier(ctx context.Context, id string) (*models.Tier, error)
	CreateTier(ctx context.Context, t *models.Tier) error

	ListChildSlots(ctx context.Context, ownerID string) ([]models.MatrixSlot, error)
	GetSlotByOccupant(ctx context.Context, occupantID string) (*models.MatrixSlot, error)
	CreateSlot(ctx context.Context, s *models.MatrixSlot) error

	GetInvestment(ctx context.Context, id string) (*models.Investment, error)
	LockInvestment(ctx context.Context, id string) (*models.Investment, error)
	CreateInvestment(ctx context.Context, inv *models.Investment) error
	SaveInvestment(ctx context.Context, inv *models.Investment) error
	ListUncalculatedInvestmentIDs(ctx context.Context, after string, limit int) ([]string, error)

	ListCommissionsByInvestment(ctx context.Context, investmentID string) ([]models.Commission, error)
	CreateCommissions(ctx context.Context, cs []models.Commission) error
	SaveCommission(ctx context.Context, c *models.Commission) error
	CreateReversal(ctx context.Context, r *models.CommissionReversal) error
	ListReversalsByInvestment(ctx context.Context, investmentID string) ([]models.CommissionReversal, error)

	GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	LockWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	SaveWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	ListPendingClawbackIDs(ctx context.Context, after string, limit int) ([]string, error)

	LockWallet(ctx context.Context, memberID string) (*models.Wallet, error)
	SaveWallet(ctx context.Context, w *models.Wallet) error
	CreateTransaction(ctx context.Context, t *models.Transaction) error

	AppendTierHistory(ctx context.Context, e *models.TierHistoryEntry) error
	ListTierHistory(ctx context.Context, memberID string) ([]models.TierHistoryEntry, error)
}
