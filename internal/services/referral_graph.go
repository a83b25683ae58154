package services

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

// ReferralGraph reads and writes the sponsor forest. Walks never trust the
// acyclic invariant: they carry a visited set and a depth bound.
type ReferralGraph struct {
	Store repository.Store
	Log   *logrus.Logger
}

func NewReferralGraph(store repository.Store, log *logrus.Logger) *ReferralGraph {
	return &ReferralGraph{Store: store, Log: log}
}

type RegisterMemberInput struct {
	MemberID   string `json:"member_id"`
	ReferrerID string `json:"referrer_id"`
}

// Register creates a member on the entry tier under ReferrerID. Registering an
// existing id returns the stored member with ErrAlreadyProcessed.
func (g *ReferralGraph) Register(ctx context.Context, in RegisterMemberInput) (*models.Member, error) {
	if in.MemberID == "" {
		return nil, invalid("member id is required")
	}
	if in.MemberID == in.ReferrerID {
		return nil, invalid("member %s cannot refer itself", in.MemberID)
	}

	var member *models.Member
	err := g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetMember(ctx, in.MemberID)
		if err == nil {
			member = existing
			return gerrors.Wrapf(models.ErrAlreadyProcessed, "member %s", in.MemberID)
		}
		if !gerrors.Is(err, models.ErrNotFound) {
			return err
		}

		m := &models.Member{
			ID:     in.MemberID,
			Status: models.MemberActive,
		}
		if in.ReferrerID != "" {
			if _, err := tx.GetMember(ctx, in.ReferrerID); err != nil {
				return err
			}
			ref := in.ReferrerID
			m.ReferrerID = &ref
		}
		catalog, err := loadCatalog(ctx, tx)
		if err != nil {
			return err
		}
		m.TierID = catalog.Lowest().ID
		if err := tx.CreateMember(ctx, m); err != nil {
			return err
		}
		member = m
		return nil
	})
	if err != nil && !gerrors.Is(err, models.ErrAlreadyProcessed) {
		return nil, err
	}
	if err == nil {
		g.Log.WithFields(logrus.Fields{"member_id": member.ID, "referrer_id": in.ReferrerID}).Info("member registered")
	}
	return member, err
}

// SetStatus changes a member's status. Suspended and exited members keep their
// place in the forest but earn nothing.
func (g *ReferralGraph) SetStatus(ctx context.Context, memberID string, status models.MemberStatus) error {
	switch status {
	case models.MemberActive, models.MemberSuspended, models.MemberExited:
	default:
		return invalid("unknown member status %q", status)
	}
	return g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		m, err := tx.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		m.Status = status
		return tx.SaveMember(ctx, m)
	})
}

// Sponsor returns the direct referrer of memberID, or nil for a root member.
func (g *ReferralGraph) Sponsor(ctx context.Context, memberID string) (*models.Member, error) {
	var sponsor *models.Member
	err := g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if m.ReferrerID == nil {
			return nil
		}
		sponsor, err = tx.GetMember(ctx, *m.ReferrerID)
		return gerrors.Wrapf(err, "referrer of %s", memberID)
	})
	return sponsor, err
}

// RecordQualifyingVolume adds amount to the member's lifetime qualifying
// volume. The volume only ever grows.
func (g *ReferralGraph) RecordQualifyingVolume(ctx context.Context, memberID string, amount decimal.Decimal) (*models.Member, error) {
	var member *models.Member
	err := g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		m, err := tx.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := addQualifyingVolume(m, amount); err != nil {
			return err
		}
		member = m
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	g.Log.WithFields(logrus.Fields{
		"member_id": memberID, "amount": amount.String(), "volume": member.LifetimeQualifyingVolume.String(),
	}).Debug("qualifying volume recorded")
	return member, nil
}

func addQualifyingVolume(m *models.Member, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("member %s: qualifying volume increment %s must be positive", m.ID, amount)
	}
	m.LifetimeQualifyingVolume = m.LifetimeQualifyingVolume.Add(amount)
	return nil
}

// Ancestors returns up to maxDepth sponsors of memberID, nearest first.
func (g *ReferralGraph) Ancestors(ctx context.Context, memberID string, maxDepth int) ([]models.Member, error) {
	var out []models.Member
	err := g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		out, err = ancestors(ctx, tx, *m, maxDepth)
		return err
	})
	return out, err
}

func ancestors(ctx context.Context, tx repository.Tx, from models.Member, maxDepth int) ([]models.Member, error) {
	visited := map[string]bool{from.ID: true}
	var out []models.Member
	cur := from
	for len(out) < maxDepth && cur.ReferrerID != nil {
		id := *cur.ReferrerID
		if visited[id] {
			return nil, invalid("referral cycle at member %s", id)
		}
		visited[id] = true

		next, err := tx.GetMember(ctx, id)
		if err != nil {
			return nil, gerrors.Wrapf(err, "referrer of %s", cur.ID)
		}
		out = append(out, *next)
		cur = *next
	}
	return out, nil
}

type DownlineEntry struct {
	Member models.Member `json:"member"`
	Depth  int           `json:"depth"`
}

// Downline lists the referrals below memberID breadth first, up to maxDepth.
func (g *ReferralGraph) Downline(ctx context.Context, memberID string, maxDepth int) ([]DownlineEntry, error) {
	var out []DownlineEntry
	err := g.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		visited := map[string]bool{memberID: true}
		// out doubles as the BFS queue; head indexes the next entry to expand.
		head := 0
		frontier := []string{memberID}
		for depth := 1; depth <= maxDepth; depth++ {
			var next []string
			for _, parent := range frontier {
				kids, err := tx.ListReferrals(ctx, parent)
				if err != nil {
					return err
				}
				for _, k := range kids {
					if visited[k.ID] {
						continue
					}
					visited[k.ID] = true
					out = append(out, DownlineEntry{Member: k, Depth: depth})
				}
			}
			for ; head < len(out); head++ {
				next = append(next, out[head].Member.ID)
			}
			if len(next) == 0 {
				break
			}
			frontier = next
		}
		return nil
	})
	return out, err
}
