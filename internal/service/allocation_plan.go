package service

import (
	"fmt"
	"time"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// AllocationMode selects how vendors are picked.
type AllocationMode string

const (
	AllocationAutomatic AllocationMode = "automatic"
	AllocationManual    AllocationMode = "manual"
)

// AllocationTarget selects whether allocations go straight to the newspapers or
// wait for deputy sign-off.
type AllocationTarget string

const (
	TargetNewspaper AllocationTarget = "newspaper"
	TargetDeputy    AllocationTarget = "deputy"
)

// allocationPlan carries the inputs of one allocation transaction.
type allocationPlan struct {
	mode    AllocationMode
	target  AllocationTarget
	count   int      // automatic
	vendors []string // manual, already de-duplicated
	now     time.Time
}

// releaseOrderNumber formats the RO number for counter value n.
func releaseOrderNumber(n int64) string {
	return fmt.Sprintf("DIPR/ARN/%d", n)
}

// planner returns the callback run inside the allocation transaction.
func (p allocationPlan) planner() repository.AllocationPlanner {
	return func(ad *repository.Advertisement, jl *repository.JobLogic) ([]*repository.NewspaperJobAllocation, error) {
		if err := checkAllocatable(ad); err != nil {
			return nil, err
		}

		var selected, queue []string
		var err error
		switch p.mode {
		case AllocationAutomatic:
			selected, queue, err = roundRobin(jl.WaitingQueue, p.count)
		case AllocationManual:
			selected, queue = p.vendors, moveToTail(jl.WaitingQueue, p.vendors)
		default:
			err = errors.InvalidInput("mode", "must be automatic or manual")
		}
		if err != nil {
			return nil, err
		}

		approved := p.target == TargetNewspaper
		due := dueTime(p.now)
		allocations := make([]*repository.NewspaperJobAllocation, 0, len(selected))
		for i, vendor := range selected {
			allocations = append(allocations, &repository.NewspaperJobAllocation{
				AdRef:           ad.ID,
				VendorRef:       vendor,
				RONumber:        releaseOrderNumber(jl.RONumbers + int64(i)),
				TimeOfAllotment: p.now,
				DueTime:         due,
				ApprovedCW:      approved,
			})
		}
		jl.RONumbers += int64(len(selected))
		jl.WaitingQueue = queue

		now := p.now
		ad.ReleaseOrderNo = allocations[0].RONumber
		ad.RODate = &now
		ad.ManuallyAllotted = p.mode == AllocationManual
		if approved {
			ad.AllotedNewspapers = append([]string{}, selected...)
			ad.StatusCaseworker = repository.CaseworkerSentToNewspaper
			ad.StatusVendor = repository.VendorAllocated
			ad.IsVendor = true
		} else {
			ad.CaseworkerDraftNewspapers = append([]string{}, selected...)
			ad.StatusCaseworker = repository.CaseworkerForwarded
			ad.StatusDeputy = repository.DeputyPending
			ad.IsRequestPending = true
			ad.IsDeputy = true
		}
		return allocations, nil
	}
}

// checkAllocatable enforces at most one in-flight release order per advertisement.
func checkAllocatable(ad *repository.Advertisement) error {
	switch {
	case ad.IsDraft:
		return errors.Conflict("advertisement is still a draft")
	case ad.StatusDeputy == repository.DeputyRejected:
		return errors.Conflict("advertisement was rejected by the deputy")
	case len(ad.AllotedNewspapers) > 0 || ad.IsRequestPending:
		return errors.Conflict("advertisement already has a release order in flight")
	}
	return nil
}

// roundRobin takes n vendors from the head of the queue (index i mod len) and
// rotates the queue left by n mod len. When n exceeds the queue length vendors
// repeat, each with its own release order.
func roundRobin(queue []string, n int) (selected, rotated []string, err error) {
	if len(queue) == 0 {
		return nil, nil, errors.Conflict("vendor waiting queue is empty")
	}
	if n < 1 {
		return nil, nil, errors.InvalidInput("numOfVendors", "must be at least 1")
	}
	selected = make([]string, n)
	for i := 0; i < n; i++ {
		selected[i] = queue[i%len(queue)]
	}
	shift := n % len(queue)
	rotated = append(append([]string{}, queue[shift:]...), queue[:shift]...)
	return selected, rotated, nil
}

// moveToTail keeps the order of unselected vendors and moves selected queue
// members to the tail in selection order. Vendors not in the queue are not added.
func moveToTail(queue, selected []string) []string {
	chosen := make(map[string]bool, len(selected))
	for _, v := range selected {
		chosen[v] = true
	}
	inQueue := make(map[string]bool, len(queue))
	out := make([]string, 0, len(queue))
	for _, v := range queue {
		inQueue[v] = true
		if !chosen[v] {
			out = append(out, v)
		}
	}
	for _, v := range selected {
		if inQueue[v] {
			out = append(out, v)
		}
	}
	return out
}
