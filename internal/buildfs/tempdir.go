package buildfs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/foundryhq/foundry/internal/buildutil"
)

const tempDirAttempts = 10

// CreateTemporaryDirectory creates a new empty directory under the OS temp
// directory, retrying with a new random name up to ten times before giving
// up.
func CreateTemporaryDirectory() (string, error) {
	base := os.TempDir()
	var lastErr error
	for i := 0; i < tempDirAttempts; i++ {
		name := fmt.Sprintf("foundry-%s", uuid.New().String())
		dir := filepath.Join(base, name)
		if err := os.Mkdir(dir, 0o755); err == nil {
			return dir, nil
		} else if !os.IsExist(err) {
			lastErr = err
		}
	}
	return "", buildutil.Wrap(buildutil.KindIO, lastErr, "create temporary directory after %d attempts", tempDirAttempts)
}

// DoInTemporaryDirectory creates a temporary directory, invokes f with it,
// and guarantees its deletion on every exit path (including panics).
func DoInTemporaryDirectory(f func(dir string) error) (err error) {
	dir, err := CreateTemporaryDirectory()
	if err != nil {
		return err
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	return f(dir)
}
