package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionPaid     CommissionStatus = "paid"
	CommissionReversed CommissionStatus = "reversed"
)

type Commission struct {
	ID             string           `gorm:"primaryKey;size:64" json:"id"`
	ReferrerID     string           `gorm:"column:referrer_id;size:64;not null;index" json:"referrer_id"`
	RefereeID      string           `gorm:"column:referee_id;size:64;not null" json:"referee_id"`
	InvestmentID   string           `gorm:"column:investment_id;size:64;not null;uniqueIndex:idx_commission_investment_kind_level" json:"investment_id"`
	Kind           CommissionKind   `gorm:"column:kind;size:20;not null;uniqueIndex:idx_commission_investment_kind_level" json:"kind"`
	Level          int              `gorm:"column:level;not null;uniqueIndex:idx_commission_investment_kind_level" json:"level"`
	Rate           decimal.Decimal  `gorm:"column:rate;type:decimal(10,4);not null" json:"rate"`
	Amount         decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	TierSnapshotID string           `gorm:"column:tier_snapshot_id;size:64;not null" json:"tier_snapshot_id"`
	CatalogVersion int              `gorm:"column:catalog_version;not null" json:"catalog_version"`
	Status         CommissionStatus `gorm:"column:status;size:20;not null" json:"status"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Commission) TableName() string {
	return "commissions"
}

// CommissionReversal is the offsetting entry written by a clawback. The
// original commission amount is never changed.
type CommissionReversal struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	CommissionID    string          `gorm:"column:commission_id;size:64;not null;uniqueIndex" json:"commission_id"`
	WithdrawalID    string          `gorm:"column:withdrawal_id;size:64;not null;index" json:"withdrawal_id"`
	ReferrerID      string          `gorm:"column:referrer_id;size:64;not null;index" json:"referrer_id"`
	ClawbackPercent int             `gorm:"column:clawback_percent;not null" json:"clawback_percent"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Deficit         decimal.Decimal `gorm:"column:deficit;type:decimal(20,2);default:0.00" json:"deficit"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CommissionReversal) TableName() string {
	return "commission_reversals"
}
