package args

import (
	"os"
	"strings"

	"go-equalize/pkg/common"
)

// Paths holds a validated source and destination directory. Both end in a
// path separator, so entry names can be appended directly.
type Paths struct {
	Source string
	Dest   string
}

// Validate checks the positional arguments of a batch run. It never touches
// the filesystem.
func Validate(args []string) (Paths, error) {
	if len(args) != 2 {
		return Paths{}, &common.ConfigurationError{Reason: common.ReasonArgCount}
	}
	src, dst := args[0], args[1]
	if !hasTrailingSeparator(src) || !hasTrailingSeparator(dst) {
		return Paths{}, &common.ConfigurationError{Reason: common.ReasonTrailingSeparator}
	}
	return Paths{Source: src, Dest: dst}, nil
}

func hasTrailingSeparator(p string) bool {
	if p == "" {
		return false
	}
	return strings.HasSuffix(p, "/") || p[len(p)-1] == os.PathSeparator
}
