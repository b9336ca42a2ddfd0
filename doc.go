// Package flowcache keeps a locally cached value synchronized with a remote
// source of truth (the origin) and streams its freshness state to any number
// of subscribers.
//
// For every key the engine decides, on each access, whether the cached value
// can be trusted or must be refreshed, runs at most one refresh per key at a
// time, and publishes every transition to subscribers in order.
//
// Components:
//   - CacheGateway[K,V]: local persistence (see kvcache for a provider-backed one).
//   - OriginGateway[K,V]: the remote fetch, plus optional paging.
//   - Registry[K,V]: per-key Snapshot (DataState + Content) and its streams.
//     Share one Registry between stores to share state.
//
// States:
//
//	Loading                      a fetch is in flight
//	Fixed(appending, prepending) settled; each paging edge is Fixed/Loading/Error
//	Error(cause)                 the last fetch failed; cause is a *FetchError
//
// Usage:
//
//	store, _ := flowcache.New(flowcache.Options[string, User]{
//	    Namespace: "user",
//	    Cache:     cache,  // e.g. kvcache.New[string, User](...)
//	    Origin:    flowcache.OriginFuncs[string, User]{FetchFunc: fetchUser},
//	})
//	sub := store.Flow("42").Subscribe()
//	ch, _ := sub.Start(ctx)
//	for snap := range ch { render(snap) }
package flowcache
