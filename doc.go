// Package connpool manages the lifecycle of named connection pools: it
// publishes pool descriptors, resolves and caches connection factories
// from resource adapters, creates the physical pools behind them and
// reconfigures running pools with the least disruptive action.
//
// # Architecture
//
// A pool is identified by a core.PoolIdentity and described by a
// core.PoolDescriptor. The descriptor is published in a naming store
// (pkg/naming) under the pool's reserved name. Resolving a pool
// (pkg/connector/resolver) looks the descriptor up, asks the adapter
// catalog (pkg/connector/adapters) for the adapter module, creates and
// validates the connection factory, negotiates transaction support,
// computes the default principal and registers the result in the
// process wide registry (pkg/connector/registry). The physical pool
// manager (pkg/physicalpool) then creates an empty puddle pool for it.
//
// The lifecycle manager (pkg/connector/lifecycle) drives create, delete,
// recreate and reconfigure under a per identity lock. Reconfiguration
// compares the live descriptor with the proposed one (pkg/connector/reconfig)
// and decides between doing nothing, updating attributes in place and
// recreating the pool.
//
// Unpooled connections for tests and tooling come from pkg/connector/unpooled,
// which deploys pools on demand through pkg/deployer.
//
// # Quick Start
//
//	settings := config.DefaultSettings()
//	res, err := config.LoadResources("resources.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	c, err := container.New(settings, res)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := c.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Shutdown(ctx)
//
// The poolctl command (cmd/poolctl) wraps the same wiring and serves the
// admin API (pkg/admin) and prometheus metrics.
package connpool
