package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/companion/pkg/history"
	"github.com/harun/companion/pkg/relay"
)

func TestConceptsCommands(t *testing.T) {
	isolate(t)

	out, err := execute(t, "concepts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 concepts")
	assert.Contains(t, out, "- 1: Gravity")
	assert.Contains(t, out, "- 2: Osmosis")

	out, err = execute(t, "concepts", "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Concept: Osmosis")
	assert.Contains(t, out, "Explanation: Water moves")

	_, err = execute(t, "concepts", "show", "42")
	assert.ErrorContains(t, err, "unknown concept")
}

func TestHistoryCommands(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "history", "topics")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversation history.")

	store, err := history.NewStore(filepath.Join(dir, "history"))
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), relay.Turn{
		TopicRef:   "1",
		SessionID:  "s1",
		Transcript: "Things fall down",
		Feedback:   "Why do they fall, do you think?",
		Timestamp:  time.Now(),
	}))

	out, err = execute(t, "history", "topics")
	require.NoError(t, err)
	assert.Contains(t, out, "- 1")

	out, err = execute(t, "history", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "STUDENT: Things fall down")
	assert.Contains(t, out, "GRANDPA: Why do they fall, do you think?")

	out, err = execute(t, "history", "clear", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared history for 1.")

	out, err = execute(t, "history", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversation history.")
}

func TestConfigCommands(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-test-0123456789abcdefghij")
	assert.Contains(t, out, "gpt-4o")

	out, err = execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	t.Setenv("COMPANION_ANALYSIS_PROVIDER", "llama")
	out, err = execute(t, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "invalid analysis provider")
}

func TestConfigFileIsRead(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"server":{"port":9100}}`), 0644))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "concepts.csv"), cfg.Concepts.Path)
}
