package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixtures(t *testing.T) {
	t.Parallel()

	f, err := ParseFixtures([]byte(`
usernames: [ada, grace]
messages:
  - hello
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "grace"}, f.Usernames)
	assert.Equal(t, []string{"hello"}, f.Messages)
	assert.Empty(t, f.EmailDomains)
}

func TestParseFixtures_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := ParseFixtures([]byte("usrnames: [ada]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usrnames")
}

func TestLoadFixtures(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "community.yml")
	require.NoError(t, os.WriteFile(path, []byte("bios: [\"gardener\"]\n"), 0o600))

	f, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"gardener"}, f.Bios)

	_, err = LoadFixtures(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadFixtures_Demo(t *testing.T) {
	t.Parallel()

	f, err := LoadFixtures("demo")
	require.NoError(t, err)
	assert.NotEmpty(t, f.Usernames)
	assert.NotEmpty(t, f.EmailDomains)
	assert.NotEmpty(t, f.Messages)
	assert.NotEmpty(t, f.ReportReasons)

	seen := make(map[string]bool, len(f.Usernames))
	for _, name := range f.Usernames {
		assert.False(t, seen[name], "duplicate fixture username %q", name)
		seen[name] = true
	}
}
