package syncer

import (
	"time"

	"github.com/mmynk/ledgerly/internal/merge"
)

// Phase is the orchestrator's position in a sync cycle. Failed is published
// when a cycle ends in error and is followed at once by Idle; LastError keeps
// the cause.
type Phase int

const (
	Idle Phase = iota
	Uploading
	Fetching
	Merging
	Failed
)

func (p Phase) String() string {
	switch p {
	case Uploading:
		return "uploading"
	case Fetching:
		return "fetching"
	case Merging:
		return "merging"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Trigger names what asked for a sync.
type Trigger string

const (
	TriggerLaunch    Trigger = "launch"
	TriggerManual    Trigger = "manual"
	TriggerTimer     Trigger = "timer"
	TriggerMutation  Trigger = "mutation"
	TriggerReconnect Trigger = "reconnect"
)

// Automatic reports whether the trigger is subject to the minimum gap
// between attempts. Only manual requests bypass it.
func (t Trigger) Automatic() bool {
	return t != TriggerManual
}

// Status is the observable state of the orchestrator.
type Status struct {
	Phase   Phase
	Syncing bool

	// Available mirrors the availability gate when the status was read.
	Available bool
	// Reason explains why sync is unavailable.
	Reason string

	// LastSyncDate is when the last successful cycle finished.
	LastSyncDate time.Time
	// LastError summarizes the last failed cycle. A successful cycle
	// clears it.
	LastError   error
	LastTrigger Trigger
	LastResult  merge.Result

	// UploadFailures is the number of records the last cycle could not
	// upload. They are retried on the next cycle.
	UploadFailures int
}
