package buildfs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGlobFilterEquivalence is the spec's name-filter testable property:
// GlobFilter("*") == AllPass, GlobFilter(s) with no '*' == ExactFilter(s).
func TestGlobFilterEquivalence(t *testing.T) {
	t.Parallel()

	all := buildfs.GlobFilter("*")
	for _, name := range []string{"", "a", "Foo.scala", "weird name"} {
		assert.True(t, all.Matches(name))
	}

	exact := buildfs.GlobFilter("Foo.scala")
	assert.True(t, exact.Matches("Foo.scala"))
	assert.False(t, exact.Matches("Bar.scala"))

	glob := buildfs.GlobFilter("*.scala")
	assert.True(t, glob.Matches("Foo.scala"))
	assert.True(t, glob.Matches("a/b.scala")) // no path semantics, just string match
	assert.False(t, glob.Matches("Foo.java"))
}

func TestGlobFilterRejectsControlCharacters(t *testing.T) {
	t.Parallel()

	f := buildfs.GlobFilter("foo\x00bar")
	assert.False(t, f.Matches("foo\x00bar"))
}

func TestDescendantsExceptPrunesAncestorChain(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "main"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "target", "classes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main", "A.scala"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "target", "classes", "A.class"), []byte("c"), 0o644))

	base, err := buildfs.NewRoot(root)
	require.NoError(t, err)

	found, err := buildfs.DescendantsExcept(base, buildfs.GlobFilter("*.scala"), buildfs.ExactFilter("target")).Get()
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "src/main/A.scala", found[0].ProjectRelPath())
}

func TestCopyDoesNotOverwriteNewer(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "A.txt"), []byte("old"), 0o644))

	base, err := buildfs.NewRoot(root)
	require.NoError(t, err)
	src, err := base.Child("A.txt")
	require.NoError(t, err)

	written, err := buildfs.Copy([]buildfs.Path{src}, dest)
	require.NoError(t, err)
	require.Len(t, written, 1)

	newer := filepath.Join(dest, "A.txt")
	require.NoError(t, os.WriteFile(newer, []byte("newer"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(newer, future, future))

	written, err = buildfs.Copy([]buildfs.Path{src}, dest)
	require.NoError(t, err)
	assert.Empty(t, written)

	data, err := os.ReadFile(newer)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestCreateTemporaryDirectoryIsRemovedAfterUse(t *testing.T) {
	t.Parallel()

	var captured string
	err := buildfs.DoInTemporaryDirectory(func(dir string) error {
		captured = dir
		return os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644)
	})
	require.NoError(t, err)
	_, statErr := os.Stat(captured)
	assert.True(t, os.IsNotExist(statErr))
}
