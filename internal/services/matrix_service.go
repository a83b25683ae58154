package services

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type MatrixService struct {
	Store    repository.Store
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
	MaxDepth int
}

func NewMatrixService(store repository.Store, m *metrics.Metrics, log *logrus.Logger, maxDepth int) *MatrixService {
	return &MatrixService{Store: store, Metrics: m, Log: log, MaxDepth: maxDepth}
}

// Placement is an open slot chosen for a new member.
type Placement struct {
	OwnerID  string               `json:"owner_id"`
	Level    int                  `json:"level"`
	Position int                  `json:"position"`
	Type     models.PlacementType `json:"placement_type"`
}

func firstFreePosition(slots []models.MatrixSlot) int {
	taken := [models.MatrixWidth + 1]bool{}
	for _, s := range slots {
		if s.Position >= 1 && s.Position <= models.MatrixWidth {
			taken[s.Position] = true
		}
	}
	for p := 1; p <= models.MatrixWidth; p++ {
		if !taken[p] {
			return p
		}
	}
	return 0
}

// findSlot searches the sponsor's matrix breadth first. Candidates at a level
// are visited in discovery order (parent order, then slot position) and the
// first one with a free position wins, taking its lowest free position. The
// result depends only on the stored tree.
func findSlot(ctx context.Context, tx repository.Tx, sponsorID string, maxDepth int) (*Placement, error) {
	visited := map[string]bool{sponsorID: true}
	frontier := []string{sponsorID}

	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		var next []string
		for _, owner := range frontier {
			slots, err := tx.ListChildSlots(ctx, owner)
			if err != nil {
				return nil, err
			}
			if pos := firstFreePosition(slots); pos > 0 {
				p := &Placement{OwnerID: owner, Level: level, Position: pos, Type: models.PlacementSpillover}
				if level == 1 {
					p.Type = models.PlacementDirect
				}
				return p, nil
			}
			for _, s := range slots {
				if visited[s.OccupantID] {
					continue
				}
				visited[s.OccupantID] = true
				next = append(next, s.OccupantID)
			}
		}
		frontier = next
	}
	return nil, gerrors.Wrapf(models.ErrCapacityExceeded, "sponsor %s, depth %d", sponsorID, maxDepth)
}

// FindSlot reports where a new referral of sponsorID would be placed now.
func (s *MatrixService) FindSlot(ctx context.Context, sponsorID string) (*Placement, error) {
	var p *Placement
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetMember(ctx, sponsorID); err != nil {
			return err
		}
		var err error
		p, err = findSlot(ctx, tx, sponsorID, s.MaxDepth)
		return err
	})
	return p, err
}

// Place occupies the next open slot under sponsorID with memberID. The scan and
// the insert share one transaction with the sponsor row locked; a racing
// placement from another sponsor's subtree loses on the unique slot index and
// comes back as ErrConcurrencyConflict. A member that is already placed gets
// its existing slot with ErrAlreadyProcessed.
func (s *MatrixService) Place(ctx context.Context, sponsorID, memberID string) (*models.MatrixSlot, error) {
	if sponsorID == "" || memberID == "" {
		return nil, invalid("sponsor and member ids are required")
	}
	if sponsorID == memberID {
		return nil, invalid("member %s cannot be placed under itself", memberID)
	}

	var slot *models.MatrixSlot
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		existing, err := tx.GetSlotByOccupant(ctx, memberID)
		if err == nil {
			slot = existing
			return gerrors.Wrapf(models.ErrAlreadyProcessed, "member %s already placed", memberID)
		}
		if !gerrors.Is(err, models.ErrNotFound) {
			return err
		}
		if _, err := tx.LockMember(ctx, sponsorID); err != nil {
			return err
		}

		p, err := findSlot(ctx, tx, sponsorID, s.MaxDepth)
		if err != nil {
			return err
		}
		slot = &models.MatrixSlot{
			ID:            uuid.NewString(),
			OwnerID:       p.OwnerID,
			Position:      p.Position,
			Level:         p.Level,
			SponsorID:     sponsorID,
			OccupantID:    memberID,
			PlacementType: p.Type,
		}
		return tx.CreateSlot(ctx, slot)
	})

	entry := s.Log.WithFields(logrus.Fields{"sponsor_id": sponsorID, "member_id": memberID})
	switch {
	case err == nil:
		s.Metrics.PlacementsTotal.WithLabelValues(string(slot.PlacementType)).Inc()
		entry.WithFields(logrus.Fields{
			"owner_id": slot.OwnerID, "level": slot.Level, "position": slot.Position, "placement_type": slot.PlacementType,
		}).Info("member placed in matrix")
		return slot, nil
	case gerrors.Is(err, models.ErrAlreadyProcessed):
		return slot, err
	case gerrors.Is(err, models.ErrCapacityExceeded):
		s.Metrics.CapacityExceededTotal.Inc()
		entry.Warn("matrix full, member joins without matrix placement")
	}
	return nil, err
}

// LevelOccupancy is one row of the matrix read model.
type LevelOccupancy struct {
	Level     int      `json:"level"`
	Filled    int      `json:"filled"`
	Capacity  int      `json:"capacity"`
	Occupants []string `json:"occupants"`
}

// levelsBelow walks the matrix under ownerID and returns occupants per level,
// in slot order, for levels 1..depth.
func levelsBelow(ctx context.Context, tx repository.Tx, ownerID string, depth int) ([][]string, error) {
	visited := map[string]bool{ownerID: true}
	frontier := []string{ownerID}
	var levels [][]string
	for level := 1; level <= depth; level++ {
		var next []string
		for _, owner := range frontier {
			slots, err := tx.ListChildSlots(ctx, owner)
			if err != nil {
				return nil, err
			}
			for _, s := range slots {
				if visited[s.OccupantID] {
					continue
				}
				visited[s.OccupantID] = true
				next = append(next, s.OccupantID)
			}
		}
		levels = append(levels, next)
		frontier = next
	}
	return levels, nil
}

// filledAtDepth counts occupied positions exactly depth levels below ownerID.
func filledAtDepth(ctx context.Context, tx repository.Tx, ownerID string, depth int) (int, error) {
	levels, err := levelsBelow(ctx, tx, ownerID, depth)
	if err != nil {
		return 0, err
	}
	return len(levels[depth-1]), nil
}

// Occupancy is the matrix read model for dashboards.
func (s *MatrixService) Occupancy(ctx context.Context, ownerID string, depth int) ([]LevelOccupancy, error) {
	if depth < 1 || depth > s.MaxDepth {
		depth = s.MaxDepth
	}
	var out []LevelOccupancy
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetMember(ctx, ownerID); err != nil {
			return err
		}
		levels, err := levelsBelow(ctx, tx, ownerID, depth)
		if err != nil {
			return err
		}
		capacity := 1
		for i, occ := range levels {
			capacity *= models.MatrixWidth
			out = append(out, LevelOccupancy{Level: i + 1, Filled: len(occ), Capacity: capacity, Occupants: occ})
		}
		return nil
	})
	return out, err
}
