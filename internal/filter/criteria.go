package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// InvalidCriteriaError lists filter values outside their dimension's known
// domain. The values are dropped, so the dimension behaves as if they were
// never set.
type InvalidCriteriaError struct {
	Dropped map[string][]string
}

func (e *InvalidCriteriaError) Error() string {
	dims := make([]string, 0, len(e.Dropped))
	for dim := range e.Dropped {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	parts := make([]string, 0, len(dims))
	for _, dim := range dims {
		parts = append(parts, fmt.Sprintf("%s=%s", dim, strings.Join(e.Dropped[dim], ",")))
	}
	return "invalid filter values dropped: " + strings.Join(parts, "; ")
}

// Normalize drops empty strings and values outside the known platform and
// chat type domains. When anything was dropped it returns the cleaned
// criteria together with an *InvalidCriteriaError.
func Normalize(criteria model.FilterCriteria) (model.FilterCriteria, error) {
	dropped := make(map[string][]string)

	criteria.Platforms = keepKnown(criteria.Platforms, model.Platforms, "platforms", dropped)
	criteria.ChatTypes = keepKnown(criteria.ChatTypes, []model.ChatType{model.ChatTypeGroup, model.ChatTypePrivate}, "chat_types", dropped)

	criteria.Countries = compact(criteria.Countries)
	criteria.AssignedTo = compact(criteria.AssignedTo)
	criteria.Tags = compact(criteria.Tags)
	criteria.Levels = compact(criteria.Levels)
	criteria.Types = compact(criteria.Types)
	criteria.Categories = compact(criteria.Categories)
	criteria.Budgets = compact(criteria.Budgets)
	criteria.IntentQuantities = compact(criteria.IntentQuantities)
	criteria.Purposes = compact(criteria.Purposes)
	criteria.Urgencies = compact(criteria.Urgencies)

	if len(dropped) > 0 {
		return criteria, &InvalidCriteriaError{Dropped: dropped}
	}
	return criteria, nil
}

func keepKnown[T ~string](values, known []T, dim string, dropped map[string][]string) []T {
	if len(values) == 0 {
		return values
	}
	out := values[:0:0]
	for _, v := range values {
		ok := false
		for _, k := range known {
			if v == k {
				ok = true
				break
			}
		}
		if ok {
			out = append(out, v)
		} else {
			dropped[dim] = append(dropped[dim], string(v))
		}
	}
	return out
}

func compact(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseTerms splits a comma-separated search into trimmed, lowercased terms.
func ParseTerms(query string) []string {
	var terms []string
	for _, part := range strings.Split(query, ",") {
		if t := strings.ToLower(strings.TrimSpace(part)); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Customers returns the customers matching any of the comma-separated terms
// in query, by name, ID or country. An empty query returns all customers.
func Customers(customers []model.Customer, query string) []model.Customer {
	terms := ParseTerms(query)
	if len(terms) == 0 {
		return append([]model.Customer(nil), customers...)
	}

	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		fields := []string{strings.ToLower(c.Name), strings.ToLower(c.ID), strings.ToLower(c.Country)}
		if anyTermIn(terms, fields) {
			out = append(out, c)
		}
	}
	return out
}

func anyTermIn(terms, fields []string) bool {
	for _, t := range terms {
		for _, f := range fields {
			if f != "" && strings.Contains(f, t) {
				return true
			}
		}
	}
	return false
}
