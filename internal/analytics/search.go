package analytics

import (
	"strings"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// maxSuggestions caps the autocomplete candidate list.
const maxSuggestions = 5

// Search filters a snapshot by a staff query. A "#"-prefixed term matches
// only the short order number (case-insensitive substring) and suppresses
// every other field; a bare term matches customer name, any item's product
// name, table name, or special instructions with OR semantics.
func Search(orders []*models.Order, term string) []*models.Order {
	term = strings.TrimSpace(term)
	if term == "" {
		return orders
	}

	var matched []*models.Order
	if code, ok := numberTerm(term); ok {
		for _, order := range orders {
			if strings.Contains(order.Number(), code) {
				matched = append(matched, order)
			}
		}
		return matched
	}

	needle := strings.ToLower(term)
	for _, order := range orders {
		if matchesText(order, needle) {
			matched = append(matched, order)
		}
	}
	return matched
}

// Suggestions returns up to five deduplicated candidate strings for the
// term, in discovery order across the snapshot. Order-number candidates
// come back "#"-prefixed and uppercased.
func Suggestions(orders []*models.Order, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(candidate string) bool {
		if candidate == "" || seen[candidate] {
			return len(out) < maxSuggestions
		}
		seen[candidate] = true
		out = append(out, candidate)
		return len(out) < maxSuggestions
	}

	if code, ok := numberTerm(term); ok {
		for _, order := range orders {
			if strings.Contains(order.Number(), code) {
				if !add("#" + order.Number()) {
					break
				}
			}
		}
		return out
	}

	needle := strings.ToLower(term)
	for _, order := range orders {
		for _, field := range textFields(order) {
			if strings.Contains(strings.ToLower(field), needle) {
				if !add(field) {
					return out
				}
			}
		}
	}
	return out
}

// numberTerm reports whether the term selects order-number mode and, if
// so, the normalized code to match.
func numberTerm(term string) (string, bool) {
	if !strings.HasPrefix(term, "#") {
		return "", false
	}
	return strings.ToUpper(strings.TrimPrefix(term, "#")), true
}

func matchesText(order *models.Order, needle string) bool {
	for _, field := range textFields(order) {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func textFields(order *models.Order) []string {
	fields := make([]string, 0, len(order.Items)+3)
	fields = append(fields, order.CustomerName)
	for _, item := range order.Items {
		fields = append(fields, item.Name)
	}
	fields = append(fields, order.TableName, order.SpecialInstructions)
	return fields
}
