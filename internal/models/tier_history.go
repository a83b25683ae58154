package models

import "time"

type TierHistoryEntry struct {
	ID         int       `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID   string    `gorm:"column:member_id;size:64;not null;index" json:"member_id"`
	FromTierID string    `gorm:"column:from_tier_id;size:64" json:"from_tier_id"`
	TierID     string    `gorm:"column:tier_id;size:64;not null" json:"tier_id"`
	Reason     string    `gorm:"column:reason;size:255" json:"reason"`
	ChangedAt  time.Time `gorm:"column:changed_at;not null" json:"changed_at"`
}

func (TierHistoryEntry) TableName() string {
	return "tier_history"
}
