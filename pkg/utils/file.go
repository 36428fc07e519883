package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// UniqueSuffix returns a short collision-free suffix for temp and
// quarantine file names.
func UniqueSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// RestrictFile narrows the file mode to owner read/write. Missing files
// are ignored.
func RestrictFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Chmod(path, 0o600)
}
