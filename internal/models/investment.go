package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentWithdrawn InvestmentStatus = "withdrawn"
)

type Investment struct {
	ID                      string           `gorm:"primaryKey;size:64" json:"id"`
	MemberID                string           `gorm:"column:member_id;size:64;not null;index" json:"member_id"`
	Amount                  decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	TierSnapshotID          string           `gorm:"column:tier_snapshot_id;size:64;not null" json:"tier_snapshot_id"`
	Status                  InvestmentStatus `gorm:"column:status;size:20;not null;index" json:"status"`
	CommissionsCalculatedAt *time.Time       `gorm:"column:commissions_calculated_at;index" json:"commissions_calculated_at"`
	CreatedAt               time.Time        `gorm:"column:created_at" json:"created_at"`
}

func (Investment) TableName() string {
	return "investments"
}
