// Package filter selects conversations matching a FilterCriteria. Every
// function here is pure: no store access, no side effects, and the input
// order is preserved.
package filter

import (
	"strings"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Conversations returns the conversations that pass every dimension of
// criteria and match the free-text query, in input order.
func Conversations(conversations []model.Conversation, criteria model.FilterCriteria, query string) []model.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]model.Conversation, 0, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		if !Matches(c, criteria) {
			continue
		}
		if !matchesSearch(c, query) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Matches reports whether c passes every dimension of criteria.
func Matches(c *model.Conversation, criteria model.FilterCriteria) bool {
	if !matchesOne(criteria.Platforms, c.Platform) {
		return false
	}
	if !matchesOne(criteria.Countries, c.Customer.Country) {
		return false
	}
	if !matchesOne(criteria.ChatTypes, c.ChatType()) {
		return false
	}
	if criteria.UnreadOnly && c.UnreadCount == 0 {
		return false
	}
	if criteria.UnrepliedOnly && !c.AwaitingReply() {
		return false
	}
	if !matchesOne(criteria.AssignedTo, c.AssignedTo) {
		return false
	}
	if !intersects(criteria.Tags, c.Tags) {
		return false
	}
	return matchesProfile(c.Customer, criteria)
}

// matchesProfile tests the seven customer facets. Matching is exact and
// case-sensitive.
func matchesProfile(cust model.Customer, criteria model.FilterCriteria) bool {
	return intersects(criteria.Levels, cust.Level) &&
		intersects(criteria.Types, cust.Type) &&
		intersects(criteria.Categories, cust.Category) &&
		intersects(criteria.Budgets, cust.Budget) &&
		intersects(criteria.IntentQuantities, cust.IntentQuantity) &&
		intersects(criteria.Purposes, cust.Purpose) &&
		intersects(criteria.Urgencies, cust.Urgency)
}

// matchesOne passes when want is empty or contains have.
func matchesOne[T comparable](want []T, have T) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == have {
			return true
		}
	}
	return false
}

// intersects passes when want is empty or shares at least one value with have.
func intersects(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, h := range have {
		for _, w := range want {
			if w == h {
				return true
			}
		}
	}
	return false
}

// matchesSearch matches the lowercased query against the customer name and
// the content of every message.
func matchesSearch(c *model.Conversation, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Customer.Name), query) {
		return true
	}
	for i := range c.Messages {
		if strings.Contains(strings.ToLower(c.Messages[i].Content), query) {
			return true
		}
	}
	return false
}

// Counts summarizes a conversation set for sidebar badges.
func Counts(conversations []model.Conversation) model.Counts {
	counts := model.Counts{
		Total:      len(conversations),
		ByPlatform: make(map[model.Platform]int),
	}
	for i := range conversations {
		counts.ByPlatform[conversations[i].Platform]++
		if conversations[i].UnreadCount > 0 {
			counts.Unread++
		}
	}
	return counts
}
