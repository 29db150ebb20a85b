package prd

import (
	"fmt"
	"strconv"
	"strings"
)

// Default id prefixes used when a document has no tasks yet.
const (
	DefaultPhasePrefix = "impl-"
	DefaultStoryPrefix = "US-"
)

// NextID returns max(numeric suffix)+1 zero-padded to three digits, using
// the first existing id's non-numeric prefix.
func (d *Document) NextID() string {
	var ids []string
	if d.Tasks != nil {
		ids = d.Tasks.IDs()
	}
	prefix := DefaultPhasePrefix
	if d.Form() == FormStory {
		prefix = DefaultStoryPrefix
	}
	return nextID(ids, prefix)
}

func nextID(ids []string, defaultPrefix string) string {
	prefix := defaultPrefix
	if len(ids) > 0 {
		prefix, _ = splitID(ids[0])
	}

	highest := 0
	for _, id := range ids {
		if _, n := splitID(id); n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1)
}

// splitID separates the trailing digits of id. n is 0 when there are none.
func splitID(id string) (prefix string, n int) {
	prefix = strings.TrimRight(id, "0123456789")
	digits := id[len(prefix):]
	if digits == "" {
		return prefix, 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return prefix, 0
	}
	return prefix, n
}
