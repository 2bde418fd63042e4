package resolvers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

var (
	numberAfterPrep = regexp.MustCompile(`(?:\ba\b|\ben\b|\bpor\b|=|:)\s*(?:\$|usd|eur|clp|mxn)?\s*(\d+(?:[.,]\d+)?)`)
	anyNumber       = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	trailingText    = regexp.MustCompile(`(?i)(?:(?:^|\s)(?:a|por)\s|[:=])\s*(.+?)\s*[.!]?$`)
)

// ExtractValue returns the new value for field. Numbers after "a", "en",
// "por", "=" or ":" win over bare numbers; digits inside the target
// reference are ignored. Text fields take the quoted value (the second
// quote when the first named the target) or the text after the first "a" that follows the target.
func ExtractValue(raw, normalized, field string, target TargetRef) (any, bool) {
	if field == action.FieldStockStatus {
		v, ok := stockStatusValue(normalized)
		if ok {
			return v, true
		}
		return nil, false
	}

	if NumericField(field) {
		n, ok := extractNumber(blank(normalized, targetSpans(normalized)))
		if !ok {
			return nil, false
		}
		if field == action.FieldStockQuantity {
			if n != float64(int64(n)) {
				return nil, false
			}
			return int(n), true
		}
		return n, true
	}

	q := quoted(raw)
	if target.Name != "" && len(q) > 0 && q[0] == target.Name {
		q = q[1:]
	}
	if len(q) > 0 {
		return q[0], true
	}
	if target.Name != "" {
		return nil, false
	}

	text := raw
	if end := lastSpanEnd(targetSpans(normalized)); end > 0 {
		// Only look after the target so an "a" inside it is not taken.
		text = tailAfter(raw, normalized, end)
	}
	m := trailingText.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	value := strings.Trim(m[1], " \"'«»“”")
	if value == "" {
		return nil, false
	}
	if field == action.FieldSKU {
		value = strings.ToUpper(strings.Fields(value)[0])
	}
	return value, true
}

func lastSpanEnd(spans [][]int) int {
	end := 0
	for _, sp := range spans {
		if sp[1] > end {
			end = sp[1]
		}
	}
	return end
}

func extractNumber(text string) (float64, bool) {
	var found string
	if all := numberAfterPrep.FindAllStringSubmatch(text, -1); len(all) > 0 {
		found = all[len(all)-1][1]
	} else if all := anyNumber.FindAllStringSubmatch(text, -1); len(all) > 0 {
		found = all[len(all)-1][1]
	}
	if found == "" {
		return 0, false
	}
	return ParseNumber(found)
}

// ParseNumber accepts "12", "12.5" and "12,5".
func ParseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NumberFromReply reads a bare number reply ("25", "a 25", "$25").
func NumberFromReply(normalized string) (float64, bool) {
	msg := strings.TrimSpace(strings.TrimRight(normalized, " .!"))
	if len(textnorm.Tokens(msg)) > 3 {
		return 0, false
	}
	return extractNumber(msg)
}

// tailAfter returns the part of raw that follows byte offset normOffset of
// its normalized form. Folding keeps one rune per precomposed letter, so
// positions are matched in runes over the whitespace-collapsed raw text.
func tailAfter(raw, normalized string, normOffset int) string {
	if normOffset >= len(normalized) {
		return ""
	}
	n := len([]rune(normalized[:normOffset]))
	collapsed := []rune(strings.Join(strings.Fields(raw), " "))
	if n >= len(collapsed) {
		return ""
	}
	return string(collapsed[n:])
}
