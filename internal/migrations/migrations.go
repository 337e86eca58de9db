package migrations

import _ "embed"

//go:embed schema.sql
var initialSchema string

// GetInitialSchema returns the initial database schema. The schema is
// embedded so tests and deployments do not depend on a working directory.
func GetInitialSchema() string {
	return initialSchema
}
