package eligibility

import (
	"strings"

	"github.com/clinicbridge/clinicbridge/internal/domain/history"
	"github.com/clinicbridge/clinicbridge/internal/upstream/mantys"
)

// Raw automation statuses reported by Mantys.
const (
	rawProcessComplete    = "PROCESS_COMPLETE"
	rawExtractingData     = "EXTRACTING_DATA"
	rawExtractionComplete = "EXTRACTION_COMPLETE"
	rawProcessRunning     = "PROCESS_RUNNING"
	rawPending            = "PENDING"
	rawQueued             = "QUEUED"
	rawProcessFailed      = "PROCESS_FAILED"
	rawError              = "ERROR"
)

// failureKeywords mark a nominally complete run as failed. The automation
// reports credential and portal problems inside the data-dump message
// rather than through its own status field.
var failureKeywords = []string{"invalid", "error", "failed", "credentials"}

var rawStatusMap = map[string]string{
	rawProcessComplete:    history.StatusComplete,
	rawExtractingData:     history.StatusProcessing,
	rawExtractionComplete: history.StatusProcessing,
	rawProcessRunning:     history.StatusProcessing,
	rawPending:            history.StatusPending,
	rawQueued:             history.StatusPending,
	rawProcessFailed:      history.StatusError,
	rawError:              history.StatusError,
}

// Classify maps a raw task status onto the history lifecycle. The second
// return value carries the failure message when the outcome is an error.
// Unknown raw statuses classify as processing so polling continues.
func Classify(ts *mantys.TaskStatus) (string, string) {
	status, ok := rawStatusMap[strings.ToUpper(ts.Status)]
	if !ok {
		return history.StatusProcessing, ""
	}

	if status == history.StatusError {
		if msg := dumpMessage(ts); msg != "" {
			return history.StatusError, msg
		}
		return history.StatusError, "automation task failed with status " + ts.Status
	}

	if status == history.StatusComplete {
		if msg := dumpMessage(ts); containsFailureKeyword(msg) {
			return history.StatusError, msg
		}
	}
	return status, ""
}

func dumpMessage(ts *mantys.TaskStatus) string {
	if ts.EligibilityResult == nil {
		return ""
	}
	return ts.EligibilityResult.DataDump.Message
}

func containsFailureKeyword(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
