package errors

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	if ae.Cause != nil && ae.Cause.Error() != ae.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", ae.Cause.Error())
	}
	for _, k := range slices.Sorted(maps.Keys(ae.Details)) {
		fmt.Fprintf(&sb, "  %s: %s\n", k, ae.Details[k])
	}
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ae.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ae.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error for --json output.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}
	je := jsonError{
		Code:       ae.Code,
		Message:    ae.Message,
		Category:   string(ae.Category),
		Details:    ae.Details,
		Suggestion: ae.Suggestion,
		Retryable:  ae.Retryable,
	}
	if ae.Cause != nil {
		je.Cause = ae.Cause.Error()
	}
	return json.Marshal(je)
}
