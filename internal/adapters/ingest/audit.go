package ingest

import (
	"fmt"
	"strings"

	"cytocore/pkg/assay"
)

// AuditEvent is one structured instrument-log entry: elapsed hours on the
// plate's time axis plus the operator message.
type AuditEvent struct {
	Hours   float64 `json:"hours" csv:"hours"`
	Message string  `json:"message" csv:"message"`
}

const (
	effectorAddedMarker      = "effector added"
	continueExperimentMarker = "continue experiment"
)

// ResolveEffector derives the effector-addition time from the audit log.
// An entry whose message contains "effector added" wins outright. Without
// one, a log holding exactly two "continue experiment" entries marks the
// second as the addition time. Anything else leaves the reference absent
// with an advisory note; the caller decides what to do with it.
func ResolveEffector(events []AuditEvent) assay.EffectorReference {
	if len(events) == 0 {
		return assay.EffectorReference{Note: "audit log is empty"}
	}
	for _, event := range events {
		if containsFold(event.Message, effectorAddedMarker) {
			hours := event.Hours
			return assay.EffectorReference{Hours: &hours}
		}
	}
	var continues []AuditEvent
	for _, event := range events {
		if containsFold(event.Message, continueExperimentMarker) {
			continues = append(continues, event)
		}
	}
	if len(continues) == 2 {
		hours := continues[1].Hours
		return assay.EffectorReference{
			Hours: &hours,
			Note:  "effector time inferred from the second \"continue experiment\" entry",
		}
	}
	return assay.EffectorReference{
		Note: fmt.Sprintf("audit log has no effector addition entry (%d \"continue experiment\" entries)", len(continues)),
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
