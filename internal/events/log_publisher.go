package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	Log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{Log: log}
}

func (p *LogPublisher) PublishCommissions(_ context.Context, cs []models.Commission) error {
	for _, c := range cs {
		p.Log.WithFields(logrus.Fields{
			"event":         "commission.created",
			"commission_id": c.ID,
			"referrer_id":   c.ReferrerID,
			"investment_id": c.InvestmentID,
			"kind":          c.Kind,
			"level":         c.Level,
			"amount":        c.Amount.String(),
		}).Info("event")
	}
	return nil
}

func (p *LogPublisher) PublishTierChanged(_ context.Context, e TierChanged) error {
	p.Log.WithFields(logrus.Fields{
		"event":     "tier.upgraded",
		"member_id": e.MemberID,
		"from_tier": e.FromTierID,
		"to_tier":   e.ToTierID,
		"reason":    e.Reason,
	}).Info("event")
	return nil
}
