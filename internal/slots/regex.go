package slots

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
)

// MBPerGB rescales gigabyte answers to the lookup's megabyte unit.
const MBPerGB = 1024

const daysPerMonth = 30

var (
	minutesPattern = regexp.MustCompile(`(\d+)\s*(분|시간)`)
	dataPattern    = regexp.MustCompile(`(\d+)\s*(gb|기가|mb|메가)`)
	countPattern   = regexp.MustCompile(`(\d+)\s*건`)
	agePattern     = regexp.MustCompile(`(\d+)\s*살`)
	perDayPattern  = regexp.MustCompile(`하루|매일|일\s*평균|per\s*day|a\s*day|daily`)
	clauseBreak    = regexp.MustCompile(`[,;!?\n]|그리고`)
)

// networkTypes is checked in order; the first standalone token wins. A token
// glued to letters or digits ("15gb", "alternative", "3grams") does not count.
var networkTypes = []struct {
	pattern *regexp.Regexp
	code    string
}{
	{regexp.MustCompile(`(?:^|[^0-9a-z])5g(?:[^0-9a-z]|$)`), "5"},
	{regexp.MustCompile(`(?:^|[^0-9a-z])lte(?:[^0-9a-z]|$)`), "4"},
	{regexp.MustCompile(`(?:^|[^0-9a-z])3g(?:[^0-9a-z]|$)`), "2"},
}

// RegexExtractor reads slots with keyword-gated patterns.
type RegexExtractor struct {
	logger *slog.Logger
}

// NewRegexExtractor creates the keyword extractor.
func NewRegexExtractor(logger *slog.Logger) *RegexExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegexExtractor{logger: logger}
}

// Extract implements Extractor.
func (x *RegexExtractor) Extract(_ context.Context, utterance string) domain.SlotMap {
	out := make(domain.SlotMap)

	// "key: value" for a required key is taken verbatim.
	if parts := strings.Split(utterance, ":"); len(parts) == 2 {
		key := domain.Slot(strings.TrimSpace(parts[0]))
		if domain.IsRequired(key) {
			out[key] = strings.TrimSpace(parts[1])
			x.logger.Debug("Slot set from key/value", "slot", key, "value", out[key])
			return out
		}
	}

	lower := strings.ToLower(utterance)

	if strings.Contains(lower, "통화") {
		x.set(out, domain.SlotVoice, minutes(lower))
	}
	if strings.Contains(lower, "데이터") || strings.Contains(lower, "인터넷") {
		x.set(out, domain.SlotData, dataMB(lower))
	}
	if strings.Contains(lower, "문자") {
		x.set(out, domain.SlotSMS, count(lower))
	}
	if strings.Contains(lower, "살") || strings.Contains(lower, "나이") {
		x.set(out, domain.SlotAge, age(lower))
	}
	for _, nt := range networkTypes {
		if nt.pattern.MatchString(lower) {
			out[domain.SlotType] = nt.code
			break
		}
	}

	return out
}

func (x *RegexExtractor) set(out domain.SlotMap, slot domain.Slot, value int) {
	if value <= 0 {
		return
	}
	out[slot] = strconv.Itoa(value)
	x.logger.Debug("Slot set from text", "slot", slot, "value", out[slot])
}

func unlimited(s string) int {
	if strings.Contains(s, "무제한") {
		return domain.UnlimitedValue
	}
	return 0
}

// clauseAround returns the part of s between the clause breaks surrounding
// s[start:end].
func clauseAround(s string, start, end int) string {
	from, to := 0, len(s)
	for _, loc := range clauseBreak.FindAllStringIndex(s, -1) {
		if loc[1] <= start {
			from = loc[1]
		} else if loc[0] >= end {
			to = loc[0]
			break
		}
	}
	return s[from:to]
}

// perDayScale turns a daily figure into a monthly one when the number found
// at s[start:end] shares its clause with a per-day qualifier.
func perDayScale(s string, start, end, v int) int {
	if v <= 0 || !perDayPattern.MatchString(clauseAround(s, start, end)) {
		return v
	}
	return v * daysPerMonth
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func minutes(s string) int {
	if m := minutesPattern.FindStringSubmatchIndex(s); m != nil {
		v := atoi(s[m[2]:m[3]])
		if s[m[4]:m[5]] == "시간" {
			v *= 60
		}
		return perDayScale(s, m[0], m[1], v)
	}
	return unlimited(s)
}

func dataMB(s string) int {
	if m := dataPattern.FindStringSubmatchIndex(s); m != nil {
		v := atoi(s[m[2]:m[3]])
		switch s[m[4]:m[5]] {
		case "gb", "기가":
			v *= MBPerGB
		}
		return perDayScale(s, m[0], m[1], v)
	}
	return unlimited(s)
}

func count(s string) int {
	if m := countPattern.FindStringSubmatchIndex(s); m != nil {
		return perDayScale(s, m[0], m[1], atoi(s[m[2]:m[3]]))
	}
	return unlimited(s)
}

func age(s string) int {
	if m := agePattern.FindStringSubmatch(s); m != nil {
		return atoi(m[1])
	}
	switch {
	case strings.Contains(s, "성인"):
		return 20
	case strings.Contains(s, "청소년"):
		return 15
	case strings.Contains(s, "실버"), strings.Contains(s, "노인"):
		return 65
	}
	return 0
}
