// Package seed loads a session snapshot (conversations, accounts and
// settings) from YAML into the entity store.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Snapshot is the on-disk session state.
type Snapshot struct {
	Settings      model.Settings       `yaml:"settings"`
	Accounts      []model.Account      `yaml:"accounts"`
	Conversations []model.Conversation `yaml:"conversations"`
}

// Loader is the part of the store a snapshot is loaded into.
type Loader interface {
	Load(conversations []model.Conversation, accounts []model.Account, settings model.Settings) error
}

// Load reads a YAML snapshot from path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	snap.applyDefaults()
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WithSettingsDefaults fills settings the snapshot leaves empty from d.
func (s *Snapshot) WithSettingsDefaults(d model.Settings) {
	if s.Settings.ReceiveLanguage == "" {
		s.Settings.ReceiveLanguage = d.ReceiveLanguage
	}
	if s.Settings.SendLanguage == "" {
		s.Settings.SendLanguage = d.SendLanguage
	}
	if s.Settings.TranslationEngine == "" {
		s.Settings.TranslationEngine = d.TranslationEngine
	}
	if s.Settings.ReplyTone == "" {
		s.Settings.ReplyTone = d.ReplyTone
	}
}

// Into replaces the store's session with the snapshot.
func (s *Snapshot) Into(l Loader) error {
	if err := l.Load(s.Conversations, s.Accounts, s.Settings); err != nil {
		return fmt.Errorf("seed: load: %w", err)
	}
	return nil
}

// applyDefaults fills account defaults. Conversation and message defaults
// are applied by the store on load.
func (s *Snapshot) applyDefaults() {
	for i := range s.Accounts {
		if s.Accounts[i].Status == "" {
			s.Accounts[i].Status = model.AccountOffline
		}
	}
}

func (s *Snapshot) validate() error {
	known := make(map[model.Platform]bool, len(model.Platforms))
	for _, p := range model.Platforms {
		known[p] = true
	}

	accounts := make(map[string]bool, len(s.Accounts))
	for i, a := range s.Accounts {
		if a.ID == "" {
			return fmt.Errorf("seed: account %d: missing id", i)
		}
		if !known[a.Platform] {
			return fmt.Errorf("seed: account %s: unknown platform %q", a.ID, a.Platform)
		}
		accounts[a.ID] = true
	}

	for i, c := range s.Conversations {
		if c.ID == "" {
			return fmt.Errorf("seed: conversation %d: missing id", i)
		}
		if !known[c.Platform] {
			return fmt.Errorf("seed: conversation %s: unknown platform %q", c.ID, c.Platform)
		}
		if c.AccountID != "" && !accounts[c.AccountID] {
			return fmt.Errorf("seed: conversation %s: unknown account %q", c.ID, c.AccountID)
		}
		for _, m := range c.Messages {
			switch m.SenderType {
			case model.SenderCustomer, model.SenderAgent, model.SenderAI:
			default:
				return fmt.Errorf("seed: message %s in %s: unknown sender %q", m.ID, c.ID, m.SenderType)
			}
		}
	}
	return nil
}
