package seed

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

func TestLoadSample(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "session.yaml"))
	require.NoError(t, err)

	require.Len(t, snap.Accounts, 2)
	assert.Equal(t, model.AccountOffline, snap.Accounts[1].Status)
	require.Len(t, snap.Conversations, 2)
	assert.Equal(t, []int{9, 14}, snap.Conversations[0].Customer.PreferredContactTimes)
	assert.True(t, snap.Settings.AutoReplyEnabled)
	assert.Empty(t, snap.Settings.SendLanguage)

	snap.WithSettingsDefaults(model.Settings{ReceiveLanguage: "de", SendLanguage: "en", TranslationEngine: "llm"})
	assert.Equal(t, "en", snap.Settings.ReceiveLanguage)
	assert.Equal(t, "en", snap.Settings.SendLanguage)
	assert.Equal(t, "llm", snap.Settings.TranslationEngine)
}

func TestIntoStore(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "session.yaml"))
	require.NoError(t, err)

	st := store.New(store.WithLogger(logger.NewNop()))
	require.NoError(t, snap.Into(st))

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "wa-maria", list[0].ID)
	assert.Equal(t, 2, list[0].UnreadCount)
	assert.Equal(t, 0, list[1].UnreadCount)
	assert.True(t, st.Settings().AutoReplyEnabled)

	msg, err := st.Message("m-4")
	require.NoError(t, err)
	assert.Equal(t, "tg-ivan", msg.ConversationID)
	assert.Equal(t, model.MessageSent, msg.Status)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":         "conversations: [",
		"unknown platform": "conversations:\n  - id: c1\n    platform: fax\n",
		"missing id":       "conversations:\n  - platform: line\n",
		"unknown account":  "conversations:\n  - id: c1\n    platform: line\n    account_id: nope\n",
		"unknown sender":   "conversations:\n  - id: c1\n    platform: line\n    messages:\n      - id: m1\n        sender_type: bot\n",
		"account platform": "accounts:\n  - id: a1\n    platform: sms\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
