// Package domain holds the core chat and plan types shared across packages.
package domain

// Slot names one piece of information required before a plan can be recommended.
type Slot string

const (
	SlotVoice Slot = "voice"
	SlotData  Slot = "data"
	SlotSMS   Slot = "sms"
	SlotAge   Slot = "age"
	SlotType  Slot = "type"
)

// Unlimited is the sentinel stored for an "unlimited" answer.
const (
	Unlimited      = "999999"
	UnlimitedValue = 999999
)

// RequiredSlots lists the slots checked for completeness, in prompt order.
var RequiredSlots = []Slot{SlotVoice, SlotData, SlotSMS, SlotAge, SlotType}

// IsRequired reports whether s is one of the five required slots.
func IsRequired(s Slot) bool {
	for _, r := range RequiredSlots {
		if r == s {
			return true
		}
	}
	return false
}

// SlotMap maps slot names to normalized string values.
type SlotMap map[Slot]string

// Clone returns a copy of m.
func (m SlotMap) Clone() SlotMap {
	out := make(SlotMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required slots absent from m, in RequiredSlots order.
// With requireNonEmpty set, a slot holding the empty string also counts as missing.
func (m SlotMap) Missing(requireNonEmpty bool) []Slot {
	var missing []Slot
	for _, s := range RequiredSlots {
		v, ok := m[s]
		if !ok || (requireNonEmpty && v == "") {
			missing = append(missing, s)
		}
	}
	return missing
}

// Complete reports whether no required slot is missing.
func (m SlotMap) Complete(requireNonEmpty bool) bool {
	return len(m.Missing(requireNonEmpty)) == 0
}
