package coordinator

import (
	"fmt"
	"regexp"
)

// Checkpoint is a parsed `<!-- checkpoint ... -->` marker, as left by an
// agent claiming a task's gates all pass.
type Checkpoint struct {
	Date              string
	GatesReconcileSHA string
	ClaimedStatus     string
}

var checkpointPattern = regexp.MustCompile(
	`<!--\s*checkpoint\s+date:\s*(\S+)\s+gates_reconcile_sha:\s*(\S+)\s+claimed_status:\s*(\S+)\s*-->`)

// ParseCheckpoint extracts a checkpoint marker from document text. ok is
// false if no marker is present.
func ParseCheckpoint(doc string) (Checkpoint, bool) {
	m := checkpointPattern.FindStringSubmatch(doc)
	if m == nil {
		return Checkpoint{}, false
	}
	return Checkpoint{Date: m[1], GatesReconcileSHA: m[2], ClaimedStatus: m[3]}, true
}

// GateResult is one named task's pass/fail outcome as of a gates run.
type GateResult struct {
	Task   string
	Status string // "pass" | "fail"
}

// Validate checks a checkpoint's claimed status against the actual gate
// results. If any gate's status is not "pass", ok is false and failingTask
// names the first such gate in input order, whatever the checkpoint claims.
// If every gate passes but the claimed status is not "pass", ok is false
// and failingTask holds a message describing that claim instead of a task
// name.
func Validate(cp Checkpoint, gates []GateResult) (ok bool, failingTask string) {
	for _, g := range gates {
		if g.Status != "pass" {
			return false, g.Task
		}
	}
	if cp.ClaimedStatus != "pass" {
		return false, fmt.Sprintf("checkpoint claims status %q with no failing gates", cp.ClaimedStatus)
	}
	return true, ""
}
