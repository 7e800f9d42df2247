// Package all imports every built-in resource adapter so they register
// themselves with the global catalog.
package all

import (
	// Import all adapters to register them
	_ "github.com/ajitpratap0/connpool/pkg/connector/adapters/kafka"
	_ "github.com/ajitpratap0/connpool/pkg/connector/adapters/mongodb"
	_ "github.com/ajitpratap0/connpool/pkg/connector/adapters/postgresql"
	_ "github.com/ajitpratap0/connpool/pkg/connector/adapters/sqldb"
)
