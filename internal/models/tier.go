package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rates is an ordered rate table stored as a JSON array of percentages.
type Rates []decimal.Decimal

func (r Rates) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]decimal.Decimal(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Rates) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return gerrors.Errorf("rates: unsupported source type %T", src)
	}
	var out []decimal.Decimal
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*r = out
	return nil
}

// Tier rows are immutable snapshots: editing a tier inserts a new Version row
// under the same Key.
type Tier struct {
	ID                      string          `gorm:"primaryKey;size:64" json:"id"`
	Key                     string          `gorm:"column:tier_key;size:64;not null;uniqueIndex:idx_tier_key_version" json:"key"`
	Version                 int             `gorm:"column:version;not null;uniqueIndex:idx_tier_key_version" json:"version"`
	Name                    string          `gorm:"column:name;size:150;not null" json:"name"`
	Order                   int             `gorm:"column:tier_order;not null" json:"order"`
	MinimumQualifyingVolume decimal.Decimal `gorm:"column:minimum_qualifying_volume;type:decimal(20,2);not null" json:"minimum_qualifying_volume"`
	RateByLevel             Rates           `gorm:"column:rate_by_level;type:text" json:"rate_by_level"`
	MatrixRateByDepth       Rates           `gorm:"column:matrix_rate_by_depth;type:text" json:"matrix_rate_by_depth"`
	MatrixPositionAmount    decimal.Decimal `gorm:"column:matrix_position_amount;type:decimal(20,2);default:0.00" json:"matrix_position_amount"`
	MaxPayoutCapRatio       decimal.Decimal `gorm:"column:max_payout_cap_ratio;type:decimal(10,4);not null" json:"max_payout_cap_ratio"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Tier) TableName() string {
	return "tiers"
}
