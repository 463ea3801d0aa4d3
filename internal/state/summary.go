package state

import (
	"strings"

	"github.com/innoq/project-selfservice-operator/pkg/constants"
)

// truncateSummary flattens msg to one line and truncates it to
// constants.StatusSummaryMaxLen characters with an ellipsis, matching
// status.summary's contract (spec §3).
func truncateSummary(msg string) string {
	flat := strings.ReplaceAll(strings.ReplaceAll(msg, "\r\n", " "), "\n", " ")
	if len(flat) <= constants.StatusSummaryMaxLen {
		return flat
	}
	const ellipsis = "..."
	cut := constants.StatusSummaryMaxLen - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return flat[:cut] + ellipsis
}
