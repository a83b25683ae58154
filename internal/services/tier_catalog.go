package services

import (
	"context"
	"sort"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

// MaxChainLevels bounds every tier's rate_by_level table.
const MaxChainLevels = 7

// TierCatalog is an immutable, versioned view of the latest row of every tier
// key, ordered by tier order. Engines receive it as a value; it is never read
// from ambient configuration.
type TierCatalog struct {
	Version int
	Tiers   []models.Tier
}

// NewTierCatalog keeps the newest version of each key and validates the result.
// Version is the sum of the kept versions, so every publish increases it.
func NewTierCatalog(rows []models.Tier) (*TierCatalog, error) {
	latest := map[string]models.Tier{}
	for _, r := range rows {
		if cur, ok := latest[r.Key]; !ok || r.Version > cur.Version {
			latest[r.Key] = r
		}
	}
	c := &TierCatalog{}
	for _, t := range latest {
		c.Tiers = append(c.Tiers, t)
		c.Version += t.Version
	}
	sort.Slice(c.Tiers, func(i, j int) bool { return c.Tiers[i].Order < c.Tiers[j].Order })
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func invalid(format string, args ...interface{}) error {
	return gerrors.Wrapf(models.ErrValidation, format, args...)
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

// Validate checks the catalog invariants.
func (c *TierCatalog) Validate() error {
	if len(c.Tiers) == 0 {
		return invalid("tier catalog is empty")
	}
	for i, t := range c.Tiers {
		if t.ID == "" || t.Key == "" {
			return invalid("tier %q has no id or key", t.Name)
		}
		if t.MinimumQualifyingVolume.IsNegative() {
			return invalid("tier %s: negative minimum qualifying volume", t.Key)
		}
		if len(t.RateByLevel) > MaxChainLevels {
			return invalid("tier %s: %d chain levels, at most %d allowed", t.Key, len(t.RateByLevel), MaxChainLevels)
		}
		for lvl, r := range t.RateByLevel {
			if !validRate(r) {
				return invalid("tier %s: level %d rate %s outside [0,100]", t.Key, lvl+1, r)
			}
		}
		for d, r := range t.MatrixRateByDepth {
			if !validRate(r) {
				return invalid("tier %s: matrix depth %d rate %s outside [0,100]", t.Key, d+1, r)
			}
		}
		if t.MatrixPositionAmount.IsNegative() {
			return invalid("tier %s: negative matrix position amount", t.Key)
		}
		if !t.MaxPayoutCapRatio.IsPositive() {
			return invalid("tier %s: max payout cap ratio must be positive", t.Key)
		}
		if i == 0 {
			continue
		}
		prev := c.Tiers[i-1]
		if prev.Order == t.Order {
			return invalid("tiers %s and %s share order %d", prev.Key, t.Key, t.Order)
		}
		if t.MinimumQualifyingVolume.LessThan(prev.MinimumQualifyingVolume) {
			return invalid("tier %s: minimum %s below lower tier %s", t.Key, t.MinimumQualifyingVolume, prev.Key)
		}
	}
	return nil
}

// Lowest is the entry tier given to new members.
func (c *TierCatalog) Lowest() models.Tier {
	return c.Tiers[0]
}

// OrderOf ranks a tier row, including superseded versions, by the current
// order of its key.
func (c *TierCatalog) OrderOf(t models.Tier) int {
	for _, cur := range c.Tiers {
		if cur.Key == t.Key {
			return cur.Order
		}
	}
	return t.Order
}

// HighestEligible returns the highest-order tier whose minimum is at most volume.
func (c *TierCatalog) HighestEligible(volume decimal.Decimal) (models.Tier, bool) {
	for i := len(c.Tiers) - 1; i >= 0; i-- {
		if c.Tiers[i].MinimumQualifyingVolume.LessThanOrEqual(volume) {
			return c.Tiers[i], true
		}
	}
	return models.Tier{}, false
}

// RateForLevel is the chain rate of a tier snapshot; levels beyond the table pay nothing.
func RateForLevel(t models.Tier, level int) decimal.Decimal {
	if level < 1 || level > len(t.RateByLevel) || level > MaxChainLevels {
		return decimal.Zero
	}
	return t.RateByLevel[level-1]
}

// MatrixRateForDepth is the matrix rate of a tier snapshot at depth.
func MatrixRateForDepth(t models.Tier, depth int) decimal.Decimal {
	if depth < 1 || depth > len(t.MatrixRateByDepth) {
		return decimal.Zero
	}
	return t.MatrixRateByDepth[depth-1]
}

func loadCatalog(ctx context.Context, tx repository.Tx) (*TierCatalog, error) {
	rows, err := tx.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	return NewTierCatalog(rows)
}

// tierVersions indexes every stored tier row by id. A member keeps the row it
// was assigned, so superseded versions stay reachable.
type tierVersions map[string]models.Tier

func indexTiers(rows []models.Tier) tierVersions {
	v := make(tierVersions, len(rows))
	for _, r := range rows {
		v[r.ID] = r
	}
	return v
}

func (v tierVersions) get(id string) (models.Tier, error) {
	t, ok := v[id]
	if !ok {
		return models.Tier{}, gerrors.Wrapf(models.ErrNotFound, "tier %s", id)
	}
	return t, nil
}

// longestMatrixTable is the deepest matrix rate table of any stored version.
func (v tierVersions) longestMatrixTable() int {
	n := 0
	for _, t := range v {
		if len(t.MatrixRateByDepth) > n {
			n = len(t.MatrixRateByDepth)
		}
	}
	return n
}

type TierInput struct {
	Key                     string            `json:"key"`
	Name                    string            `json:"name"`
	Order                   int               `json:"order"`
	MinimumQualifyingVolume decimal.Decimal   `json:"minimum_qualifying_volume"`
	RateByLevel             []decimal.Decimal `json:"rate_by_level"`
	MatrixRateByDepth       []decimal.Decimal `json:"matrix_rate_by_depth"`
	MatrixPositionAmount    decimal.Decimal   `json:"matrix_position_amount"`
	MaxPayoutCapRatio       decimal.Decimal   `json:"max_payout_cap_ratio"`
}

type TierCatalogService struct {
	Store repository.Store
	Log   *logrus.Logger
}

func NewTierCatalogService(store repository.Store, log *logrus.Logger) *TierCatalogService {
	return &TierCatalogService{Store: store, Log: log}
}

// Load returns the current catalog.
func (s *TierCatalogService) Load(ctx context.Context) (*TierCatalog, error) {
	var c *TierCatalog
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		c, err = loadCatalog(ctx, tx)
		return err
	})
	return c, err
}

// Publish stores in as the next version of its key. The write is rolled back
// when the resulting catalog would be invalid.
func (s *TierCatalogService) Publish(ctx context.Context, in TierInput) (*models.Tier, error) {
	if in.Key == "" || in.Name == "" {
		return nil, invalid("tier key and name are required")
	}
	var created models.Tier
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		rows, err := tx.ListTiers(ctx)
		if err != nil {
			return err
		}
		version := 1
		for _, r := range rows {
			if r.Key == in.Key && r.Version >= version {
				version = r.Version + 1
			}
		}
		created = models.Tier{
			ID:                      uuid.NewString(),
			Key:                     in.Key,
			Version:                 version,
			Name:                    in.Name,
			Order:                   in.Order,
			MinimumQualifyingVolume: in.MinimumQualifyingVolume,
			RateByLevel:             models.Rates(in.RateByLevel),
			MatrixRateByDepth:       models.Rates(in.MatrixRateByDepth),
			MatrixPositionAmount:    in.MatrixPositionAmount,
			MaxPayoutCapRatio:       in.MaxPayoutCapRatio,
		}
		if _, err := NewTierCatalog(append(rows, created)); err != nil {
			return err
		}
		return tx.CreateTier(ctx, &created)
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"tier_key": created.Key, "version": created.Version}).Info("tier published")
	return &created, nil
}
