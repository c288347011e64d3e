package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	s := NewStatic("  abc  ")
	tok, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	s.Set("")
	_, ok = s.Token()
	assert.False(t, ok)
}

func TestEnv(t *testing.T) {
	t.Setenv("OTTOCHAT_TEST_TOKEN", "from-env")

	tok, ok := Env("OTTOCHAT_TEST_TOKEN").Token()
	assert.True(t, ok)
	assert.Equal(t, "from-env", tok)

	t.Setenv(EnvToken, "")
	_, ok = Env("").Token()
	assert.False(t, ok)
}

func TestFileRereadsOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	f := NewFile(path)

	_, ok := f.Token()
	assert.False(t, ok, "missing file means anonymous")

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))
	tok, ok := f.Token()
	assert.True(t, ok)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	tok, _ = f.Token()
	assert.Equal(t, "second", tok)
}

func TestChainOrder(t *testing.T) {
	c := Chain{NewStatic(""), nil, NewStatic("second"), NewStatic("third")}
	tok, ok := c.Token()
	assert.True(t, ok)
	assert.Equal(t, "second", tok)

	_, ok = Chain{}.Token()
	assert.False(t, ok)
}

func TestDefaultTokenPathHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "ottochat", "token"), DefaultTokenPath())
}
