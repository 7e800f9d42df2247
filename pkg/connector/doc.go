// Package connector groups the packages that turn pool descriptors into
// working connection factories.
//
// # Packages
//
//   - core: pool identities, descriptors, runtime metadata and the
//     interfaces between the engine and its collaborators (naming, adapters,
//     factories, managed connections, physical pools, deployers).
//
//   - adapters: the adapter catalog. Adapter subpackages (postgresql, sqldb,
//     mongodb, kafka) register themselves in init; import adapters/all to
//     get every built-in adapter.
//
//   - validation: checks factory properties against the adapter schema.
//
//   - registry: the process wide map from pool identity to resolved
//     runtime metadata, plus the per identity locks serializing lifecycle
//     operations.
//
//   - resolver: builds runtime metadata for a pool and caches it.
//
//   - reconfig: compares two descriptors and decides how a live pool has
//     to change.
//
//   - lifecycle: create, delete, recreate, reconfigure, flush and the
//     queries on pools.
//
//   - unpooled: connections created outside any physical pool.
//
// # Resolving a pool
//
//	reg := registry.NewRegistry()
//	store := naming.NewMemory()
//	pools := physicalpool.NewManager(reg, store)
//	res := resolver.New(reg, store, adapters.GetCatalog(), pools)
//	lc := lifecycle.NewManager(reg, res, store, pools)
//
//	if err := lc.Create(ctx, desc, nil); err != nil {
//		return err
//	}
//	action, err := lc.Reconfigure(ctx, proposed, nil)
package connector
