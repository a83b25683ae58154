package services

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/events"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type TierUpgradeService struct {
	Store     repository.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Log       *logrus.Logger
	Now       func() time.Time
}

func NewTierUpgradeService(store repository.Store, pub events.Publisher, m *metrics.Metrics, log *logrus.Logger) *TierUpgradeService {
	return &TierUpgradeService{Store: store, Publisher: pub, Metrics: m, Log: log, Now: time.Now}
}

type UpgradeResult struct {
	MemberID string      `json:"member_id"`
	From     models.Tier `json:"from"`
	To       models.Tier `json:"to"`
	Upgraded bool        `json:"upgraded"`
}

// Evaluate moves a member to the highest tier their lifetime qualifying volume
// reaches. Tiers only ratchet up: a lower or equal target leaves the member as is.
func (s *TierUpgradeService) Evaluate(ctx context.Context, memberID, reason string) (*UpgradeResult, error) {
	var res *UpgradeResult
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		m, err := tx.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(ctx, tx)
		if err != nil {
			return err
		}
		current, err := tx.GetTier(ctx, m.TierID)
		if err != nil {
			return gerrors.Wrapf(err, "tier of member %s", m.ID)
		}
		res = &UpgradeResult{MemberID: m.ID, From: *current, To: *current}

		target, ok := catalog.HighestEligible(m.LifetimeQualifyingVolume)
		if !ok || target.Order <= catalog.OrderOf(*current) {
			return nil
		}

		m.TierID = target.ID
		if err := tx.SaveMember(ctx, m); err != nil {
			return err
		}
		if err := tx.AppendTierHistory(ctx, &models.TierHistoryEntry{
			MemberID:   m.ID,
			FromTierID: current.ID,
			TierID:     target.ID,
			Reason:     reason,
			ChangedAt:  s.Now(),
		}); err != nil {
			return err
		}
		res.To = target
		res.Upgraded = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.Upgraded {
		return res, nil
	}

	s.Metrics.TierUpgradesTotal.WithLabelValues(res.To.Key).Inc()
	entry := s.Log.WithFields(logrus.Fields{"member_id": memberID, "from": res.From.Key, "to": res.To.Key, "reason": reason})
	entry.Info("member upgraded")
	if err := s.Publisher.PublishTierChanged(ctx, events.TierChanged{
		MemberID:   memberID,
		FromTierID: res.From.ID,
		ToTierID:   res.To.ID,
		ToTierKey:  res.To.Key,
		Reason:     reason,
		ChangedAt:  s.Now(),
	}); err != nil {
		s.Metrics.EventPublishFailures.WithLabelValues("tier.upgraded").Inc()
		entry.WithError(err).Error("publish tier change")
	}
	return res, nil
}

// EvaluateBatch checks one page of members ordered by id, starting after cursor.
func (s *TierUpgradeService) EvaluateBatch(ctx context.Context, cursor string, limit int) (BatchResult, error) {
	ids, err := listPage(ctx, s.Store, func(tx repository.Tx) ([]string, error) {
		return tx.ListMemberIDs(ctx, cursor, limit)
	})
	if err != nil {
		return BatchResult{}, err
	}
	log := s.Log.WithFields(logrus.Fields{"sweep": "tiers", "cursor": cursor})
	return RunBatch(ctx, log, ids, limit, func(ctx context.Context, id string) (bool, error) {
		res, err := s.Evaluate(ctx, id, "sweep")
		if err != nil {
			return false, err
		}
		return res.Upgraded, nil
	}), nil
}

func listPage(ctx context.Context, store repository.Store, fn func(tx repository.Tx) ([]string, error)) ([]string, error) {
	var ids []string
	err := store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		ids, err = fn(tx)
		return err
	})
	return ids, err
}

// History lists a member's tier changes, oldest first.
func (s *TierUpgradeService) History(ctx context.Context, memberID string) ([]models.TierHistoryEntry, error) {
	var out []models.TierHistoryEntry
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTierHistory(ctx, memberID)
		return err
	})
	return out, err
}
