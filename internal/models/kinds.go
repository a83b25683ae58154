package models

import "fmt"

type CommissionKind string

const (
	CommissionChain  CommissionKind = "chain"
	CommissionMatrix CommissionKind = "matrix"
)

// JobKind enumerates every unit of background work.
type JobKind int

const (
	JobPlaceMember JobKind = iota + 1
	JobCalculateCommission
	JobApplyClawback
	JobCheckTier
	JobSweepCommissions
	JobSweepClawbacks
	JobSweepTiers
)

// AllJobKinds lists the kinds in registration order.
var AllJobKinds = []JobKind{
	JobPlaceMember,
	JobCalculateCommission,
	JobApplyClawback,
	JobCheckTier,
	JobSweepCommissions,
	JobSweepClawbacks,
	JobSweepTiers,
}

// TaskType is the stable queue name of the kind.
func (k JobKind) TaskType() string {
	switch k {
	case JobPlaceMember:
		return "matrix:place"
	case JobCalculateCommission:
		return "commission:calculate"
	case JobApplyClawback:
		return "clawback:apply"
	case JobCheckTier:
		return "tier:check"
	case JobSweepCommissions:
		return "sweep:commissions"
	case JobSweepClawbacks:
		return "sweep:clawbacks"
	case JobSweepTiers:
		return "sweep:tiers"
	}
	panic(fmt.Sprintf("models: unknown job kind %d", int(k)))
}

func (k JobKind) String() string {
	return k.TaskType()
}

// IsSweep reports whether the kind pages over many entities.
func (k JobKind) IsSweep() bool {
	switch k {
	case JobSweepCommissions, JobSweepClawbacks, JobSweepTiers:
		return true
	case JobPlaceMember, JobCalculateCommission, JobApplyClawback, JobCheckTier:
		return false
	}
	panic(fmt.Sprintf("models: unknown job kind %d", int(k)))
}

// ParseJobKind maps a task type back to its kind.
func ParseJobKind(taskType string) (JobKind, bool) {
	for _, k := range AllJobKinds {
		if k.TaskType() == taskType {
			return k, true
		}
	}
	return 0, false
}
