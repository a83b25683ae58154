package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalRequest struct {
	ID                string          `gorm:"primaryKey;size:64" json:"id"`
	InvestmentID      string          `gorm:"column:investment_id;size:64;not null;index" json:"investment_id"`
	MemberID          string          `gorm:"column:member_id;size:64;not null;index" json:"member_id"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	ApprovedAt        time.Time       `gorm:"column:approved_at;not null" json:"approved_at"`
	ClawbackAppliedAt *time.Time      `gorm:"column:clawback_applied_at;index" json:"clawback_applied_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
