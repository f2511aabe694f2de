package model

// Customer is the profile snapshot carried on a conversation. The facet
// lists hold tag-like values assigned by agents.
type Customer struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Country  string `json:"country,omitempty" yaml:"country"`
	Language string `json:"language,omitempty" yaml:"language"`

	Level          []string `json:"level,omitempty" yaml:"level"`
	Type           []string `json:"type,omitempty" yaml:"type"`
	Category       []string `json:"category,omitempty" yaml:"category"`
	Budget         []string `json:"budget,omitempty" yaml:"budget"`
	IntentQuantity []string `json:"intent_quantity,omitempty" yaml:"intent_quantity"`
	Purpose        []string `json:"purpose,omitempty" yaml:"purpose"`
	Urgency        []string `json:"urgency,omitempty" yaml:"urgency"`

	// PreferredContactTimes are hours of day (0-23) at which the customer
	// has historically responded.
	PreferredContactTimes []int `json:"preferred_contact_times,omitempty" yaml:"preferred_contact_times"`
}

// Clone returns a deep copy of the customer.
func (c Customer) Clone() Customer {
	out := c
	out.Level = append([]string(nil), c.Level...)
	out.Type = append([]string(nil), c.Type...)
	out.Category = append([]string(nil), c.Category...)
	out.Budget = append([]string(nil), c.Budget...)
	out.IntentQuantity = append([]string(nil), c.IntentQuantity...)
	out.Purpose = append([]string(nil), c.Purpose...)
	out.Urgency = append([]string(nil), c.Urgency...)
	out.PreferredContactTimes = append([]int(nil), c.PreferredContactTimes...)
	return out
}
