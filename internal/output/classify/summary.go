package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/omnik/internal/output/ansi"
)

const summaryLineLimit = 100

var optionMarker = regexp.MustCompile(`(?m)^\s*[❯│\s]*\d+\.`)

// Summary returns a one-line description of text for logs and status lines.
func Summary(text string, c Category) string {
	clean := strings.TrimSpace(ansi.Sanitize(text))

	var first string
	for _, line := range strings.Split(clean, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			first = prefix(line, summaryLineLimit)
			break
		}
	}
	if first == "" {
		return "(empty response)"
	}

	switch c {
	case Prompt:
		return fmt.Sprintf("Interactive prompt with %d options", len(optionMarker.FindAllStringIndex(clean, -1)))
	case Error:
		return "Error: " + first
	case Complete:
		return "Completed: " + first
	default:
		return first
	}
}
