// Package repositorycache provides a read-through caching decorator for
// repository.Repository.
//
// # Overview
//
// CachedRepository wraps a base repository and a cache.Gateway. Read
// operations are served from the gateway, everything else goes straight to
// the base repository:
//
//   - Cached: Get (including not-found results), List, Paginate
//   - Pass-through: Create, Query
//
// Errors from the base repository are returned unchanged and never cached.
//
// # Basic Usage
//
//	base, err := repository.New[model.Book](db, repository.WithSearchColumns("name"))
//	if err != nil {
//		return err
//	}
//	books := repositorycache.New[model.Book](base, gateway,
//		repositorycache.WithPrefix("crudcore:"),
//		repositorycache.WithTTL(time.Minute),
//	)
//
//	page, err := books.Paginate(ctx, pagination.Params{Query: "dune", Page: 1, Size: 10, Order: pagination.Desc})
//
// # Keys
//
// Every key starts with the repository namespace, the prefix followed by the
// snake_case entity type name (crudcore:book:), then the operation, then the
// SHA-256 of the request parameters as computed by cache.KeyFor.
//
// # Staleness
//
// Writes do not invalidate anything. After a Create, cached reads keep
// returning the previous result until their entry expires, so the ttl is the
// upper bound on staleness. Callers that need to see their own writes mark
// the context:
//
//	ctx = repositorycache.WithConsistentRead(ctx)
//
// which skips the cache for that call, neither reading nor populating it.
//
// # Cache failures
//
// A failing store degrades to the base repository. WithStrictCache turns
// those failures into errors for callers that prefer to fail fast.
package repositorycache
