package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TrxCredit = "credit"
	TrxDebit  = "debit"
)

// Transaction is one wallet ledger line.
type Transaction struct {
	ID            int             `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID      string          `gorm:"column:member_id;size:64;not null;index" json:"member_id"`
	TransactionNo string          `gorm:"column:transaction_no;size:64;not null;index" json:"transaction_no"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	TrxType       string          `gorm:"column:transaction_type;size:20;not null" json:"transaction_type"`
	Subject       string          `gorm:"column:subject;size:255;not null" json:"subject"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	CommissionID  *string         `gorm:"column:commission_id;size:64;index" json:"commission_id"`
	Balance       decimal.Decimal `gorm:"column:balance;type:decimal(20,2);default:0.00" json:"balance"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
