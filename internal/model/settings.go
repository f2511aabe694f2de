package model

// AccountStatus reports whether a platform account is connected.
type AccountStatus string

const (
	AccountOnline  AccountStatus = "online"
	AccountOffline AccountStatus = "offline"
)

// Account is a connected platform account that conversations belong to.
type Account struct {
	ID       string        `json:"id" yaml:"id"`
	Platform Platform      `json:"platform" yaml:"platform"`
	Name     string        `json:"name" yaml:"name"`
	Status   AccountStatus `json:"status" yaml:"status"`
}

// Settings holds workspace-wide preferences that drive the engine.
type Settings struct {
	AutoReplyEnabled  bool   `json:"auto_reply_enabled" yaml:"auto_reply_enabled"`
	ReceiveLanguage   string `json:"receive_language" yaml:"receive_language"`
	SendLanguage      string `json:"send_language" yaml:"send_language"`
	TranslationEngine string `json:"translation_engine" yaml:"translation_engine"`
	AutoTranslate     bool   `json:"auto_translate" yaml:"auto_translate"`
	ReplyTone         string `json:"reply_tone" yaml:"reply_tone"`
}

// UpdateSettingsRequest carries a partial settings update. Nil fields are
// left unchanged.
type UpdateSettingsRequest struct {
	AutoReplyEnabled  *bool   `json:"auto_reply_enabled,omitempty"`
	ReceiveLanguage   *string `json:"receive_language,omitempty"`
	SendLanguage      *string `json:"send_language,omitempty"`
	TranslationEngine *string `json:"translation_engine,omitempty"`
	AutoTranslate     *bool   `json:"auto_translate,omitempty"`
	ReplyTone         *string `json:"reply_tone,omitempty"`
}

// Apply returns s with the non-nil fields of req applied.
func (req UpdateSettingsRequest) Apply(s Settings) Settings {
	if req.AutoReplyEnabled != nil {
		s.AutoReplyEnabled = *req.AutoReplyEnabled
	}
	if req.ReceiveLanguage != nil {
		s.ReceiveLanguage = *req.ReceiveLanguage
	}
	if req.SendLanguage != nil {
		s.SendLanguage = *req.SendLanguage
	}
	if req.TranslationEngine != nil {
		s.TranslationEngine = *req.TranslationEngine
	}
	if req.AutoTranslate != nil {
		s.AutoTranslate = *req.AutoTranslate
	}
	if req.ReplyTone != nil {
		s.ReplyTone = *req.ReplyTone
	}
	return s
}
