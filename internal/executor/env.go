package executor

import (
	"os"
	"strings"
)

func osEnviron() []string {
	return os.Environ()
}

// envKey upper-cases a metadata key for use as a META_<KEY>
// environment variable suffix.
func envKey(key string) string {
	return strings.ToUpper(key)
}
