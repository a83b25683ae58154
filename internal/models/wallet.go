package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a member's commission earnings. DeficitBalance is clawback
// shortfall still owed from future earnings.
type Wallet struct {
	MemberID         string          `gorm:"primaryKey;column:member_id;size:64" json:"member_id"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:decimal(20,2);default:0.00" json:"available_balance"`
	DeficitBalance   decimal.Decimal `gorm:"column:deficit_balance;type:decimal(20,2);default:0.00" json:"deficit_balance"`
	Currency         string          `gorm:"column:currency;size:10;not null" json:"currency"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
