package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"compensation-service/internal/models"
)

// CommissionCreated is what the payout/ledger subsystem consumes.
type CommissionCreated struct {
	CommissionID   string          `json:"commission_id"`
	ReferrerID     string          `json:"referrer_id"`
	RefereeID      string          `json:"referee_id"`
	InvestmentID   string          `json:"investment_id"`
	Kind           string          `json:"kind"`
	Level          int             `json:"level"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	TierSnapshotID string          `json:"tier_snapshot_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TierChanged is what the messaging subsystem consumes.
type TierChanged struct {
	MemberID   string    `json:"member_id"`
	FromTierID string    `json:"from_tier_id"`
	ToTierID   string    `json:"to_tier_id"`
	ToTierKey  string    `json:"to_tier_key"`
	Reason     string    `json:"reason"`
	ChangedAt  time.Time `json:"changed_at"`
}

type Publisher interface {
	PublishCommissions(ctx context.Context, cs []models.Commission) error
	PublishTierChanged(ctx context.Context, e TierChanged) error
}

func NewCommissionCreated(c models.Commission) CommissionCreated {
	return CommissionCreated{
		CommissionID:   c.ID,
		ReferrerID:     c.ReferrerID,
		RefereeID:      c.RefereeID,
		InvestmentID:   c.InvestmentID,
		Kind:           string(c.Kind),
		Level:          c.Level,
		Rate:           c.Rate,
		Amount:         c.Amount,
		Status:         string(c.Status),
		TierSnapshotID: c.TierSnapshotID,
		CreatedAt:      c.CreatedAt,
	}
}
