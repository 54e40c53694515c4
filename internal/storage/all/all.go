// Package all registers every SQL sink backend.
package all

import (
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage/mssql"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage/postgres"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage/sqlite"
)
