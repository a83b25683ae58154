package models

import "time"

type PlacementType string

const (
	PlacementDirect    PlacementType = "direct"
	PlacementSpillover PlacementType = "spillover"
)

// MatrixWidth is the number of positions under every matrix node.
const MatrixWidth = 3

// MatrixSlot is one occupied position under OwnerID. Level is the depth below
// SponsorID at which the placement search found the slot.
type MatrixSlot struct {
	ID            string        `gorm:"primaryKey;size:64" json:"id"`
	OwnerID       string        `gorm:"column:owner_id;size:64;not null;uniqueIndex:idx_slot_owner_position" json:"owner_id"`
	Position      int           `gorm:"column:position;not null;uniqueIndex:idx_slot_owner_position" json:"position"`
	Level         int           `gorm:"column:level;not null" json:"level"`
	SponsorID     string        `gorm:"column:sponsor_id;size:64;not null;index" json:"sponsor_id"`
	OccupantID    string        `gorm:"column:occupant_id;size:64;not null;uniqueIndex" json:"occupant_id"`
	PlacementType PlacementType `gorm:"column:placement_type;size:20;not null" json:"placement_type"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MatrixSlot) TableName() string {
	return "matrix_slots"
}
