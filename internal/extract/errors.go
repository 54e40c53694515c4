package extract

import (
	"fmt"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
)

// ConfigError is the fatal configuration error raised while compiling a
// mapping. It is re-exported so callers of the engine can match both fatal
// kinds from one package.
type ConfigError = mapping.ConfigError

// EmptyResultError reports that a mandatory entity's root_path matched no row
// nodes. The run is aborted and no entity output should be trusted.
type EmptyResultError struct {
	Entity   string
	RootPath string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("mandatory entity %s: root_path %q matched no nodes", e.Entity, e.RootPath)
}
