package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExited    MemberStatus = "exited"
)

type Member struct {
	ID                       string          `gorm:"primaryKey;size:64" json:"id"`
	ReferrerID               *string         `gorm:"column:referrer_id;size:64;index" json:"referrer_id"`
	TierID                   string          `gorm:"column:tier_id;size:64;not null" json:"tier_id"`
	LifetimeQualifyingVolume decimal.Decimal `gorm:"column:lifetime_qualifying_volume;type:decimal(20,2);default:0.00" json:"lifetime_qualifying_volume"`
	Status                   MemberStatus    `gorm:"column:status;size:20;not null;default:active" json:"status"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

func (m Member) IsActive() bool {
	return m.Status == MemberActive
}
