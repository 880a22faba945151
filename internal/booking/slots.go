package booking

import (
	"time"
)

// timeSlots are the fixed half-hour windows the clinic books, in display
// order. The labels double as the stored representation, so validation is
// membership in this list.
var timeSlots = []string{
	"08:00 AM", "08:30 AM",
	"09:00 AM", "09:30 AM",
	"10:00 AM", "10:30 AM",
	"11:00 AM", "11:30 AM",
	"12:00 PM", "12:30 PM",
	"01:00 PM", "01:30 PM",
	"02:00 PM", "02:30 PM",
	"03:00 PM", "03:30 PM",
	"04:00 PM", "04:30 PM",
	"05:00 PM", "05:30 PM",
	"06:00 PM", "06:30 PM",
	"07:00 PM", "07:30 PM",
}

var slotIndexes = func() map[string]int {
	m := make(map[string]int, len(timeSlots))
	for i, s := range timeSlots {
		m[s] = i
	}
	return m
}()

// TimeSlots returns the bookable slot labels in display order.
func TimeSlots() []string {
	out := make([]string, len(timeSlots))
	copy(out, timeSlots)
	return out
}

// ValidSlot reports whether label is one of the fixed slot labels.
func ValidSlot(label string) bool {
	_, ok := slotIndexes[label]
	return ok
}

// SlotIndex returns the position of a slot label within the day, and
// whether the label is known. Used for deterministic ordering.
func SlotIndex(label string) (int, bool) {
	i, ok := slotIndexes[label]
	return i, ok
}

const dateLayout = "02/01/2006"

// ParseDate parses a dd/mm/yyyy calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
