package upgrades

import (
	"embed"

	"go.mau.fi/util/dbutil"
)

// Table contains the schema upgrades for the research cache database.
var Table dbutil.UpgradeTable

//go:embed *.sql
var rawUpgrades embed.FS

func init() {
	Table.RegisterFS(rawUpgrades)
}
