// Package quickentry turns a typed list such as "2 limonadas, flan x3" into
// order lines resolved against the product catalog.
package quickentry

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// maxQuantity bounds a single parsed line.
const maxQuantity = 999

// Line is one requested product with its quantity.
type Line struct {
	Raw      string `json:"raw"`
	Text     string `json:"text"`
	Quantity int    `json:"quantity"`
}

// ParseLines splits text on newlines, commas and semicolons. Each entry may
// carry one quantity token ("2", "x2", "2x", "*2"); entries without one
// count as a single unit. Entries that cannot be read are reported as
// warnings and skipped.
func ParseLines(text string) ([]Line, []string) {
	entries := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})

	var lines []Line
	var warnings []string
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		line, err := parseLine(entry)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %q: %v", entry, err))
			continue
		}
		lines = append(lines, line)
	}
	return lines, warnings
}

func parseLine(entry string) (Line, error) {
	qty := 1
	var qtyFound bool
	var desc []string

	for _, tok := range strings.Fields(entry) {
		if q, ok := parseQuantity(tok); ok {
			if qtyFound {
				return Line{}, fmt.Errorf("more than one quantity")
			}
			qty, qtyFound = q, true
			continue
		}
		desc = append(desc, tok)
	}

	if len(desc) == 0 {
		return Line{}, fmt.Errorf("no product named")
	}
	if qty < 1 || qty > maxQuantity {
		return Line{}, fmt.Errorf("quantity must be between 1 and %d", maxQuantity)
	}
	return Line{Raw: entry, Text: strings.Join(desc, " "), Quantity: qty}, nil
}

// parseQuantity reads "3", "x3", "3x", "X3" or "*3".
func parseQuantity(tok string) (int, bool) {
	tok = strings.ToLower(tok)
	switch {
	case strings.HasPrefix(tok, "x"), strings.HasPrefix(tok, "*"):
		tok = tok[1:]
	case strings.HasSuffix(tok, "x"):
		tok = tok[:len(tok)-1]
	}
	if tok == "" {
		return 0, false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}
