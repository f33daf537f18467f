package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAIKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"

func TestScrub_NoSecrets(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	res, err := s.Scrub("Finish the Q3 report by Friday. High priority.")
	require.NoError(t, err)
	assert.False(t, res.HasFindings())
	assert.Equal(t, "Finish the Q3 report by Friday. High priority.", res.Scrubbed)
}

func TestScrub_RedactsKey(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	input := "Rotate the key const apiKey = \"" + openAIKey + "\" before Friday"
	res, err := s.Scrub(input)
	require.NoError(t, err)

	require.True(t, res.HasFindings())
	assert.NotContains(t, res.Scrubbed, openAIKey)
	assert.Contains(t, res.Scrubbed, "[REDACTED:")
	assert.True(t, strings.HasPrefix(res.Scrubbed, "Rotate the key"))
	assert.NotEmpty(t, res.RuleIDs())
}

func TestScrub_Disabled(t *testing.T) {
	s, err := New(Config{Enabled: false})
	require.NoError(t, err)

	input := "const apiKey = \"" + openAIKey + "\""
	res, err := s.Scrub(input)
	require.NoError(t, err)
	assert.Equal(t, input, res.Scrubbed)
	assert.False(t, s.Enabled())
}

func TestScrub_NilScrubber(t *testing.T) {
	var s *Scrubber
	res, err := s.Scrub("anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", res.Scrubbed)
}

func TestScrub_Allowlist(t *testing.T) {
	s, err := New(Config{Enabled: true, Allowlist: []string{`sk-proj-abc123`}})
	require.NoError(t, err)

	input := "const apiKey = \"" + openAIKey + "\""
	res, err := s.Scrub(input)
	require.NoError(t, err)
	assert.Contains(t, res.Scrubbed, openAIKey)
}

func TestLoadAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = [\n  '''DEMO_API_KEY''',\n  '''EXAMPLE_SECRET_.*'''\n]\n"), 0600))

	allow, err := LoadAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEMO_API_KEY", "EXAMPLE_SECRET_.*"}, allow.Regexes)
}

func TestLoadAllowlist_Missing(t *testing.T) {
	allow, err := LoadAllowlist(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Empty(t, allow.Regexes)
}

func TestLoadAllowlist_Invalid(t *testing.T) {
	dir := t.TempDir()

	badTOML := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badTOML, []byte("[allowlist\n"), 0600))
	_, err := LoadAllowlist(badTOML)
	assert.ErrorIs(t, err, ErrInvalidTOML)

	badRegex := filepath.Join(dir, "regex.toml")
	require.NoError(t, os.WriteFile(badRegex, []byte("[allowlist]\nregexes = ['''([''']\n"), 0600))
	_, err = LoadAllowlist(badRegex)
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestNew_InvalidInlinePattern(t *testing.T) {
	_, err := New(Config{Enabled: true, Allowlist: []string{"("}})
	assert.ErrorIs(t, err, ErrInvalidRegex)
}
