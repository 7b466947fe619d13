// Package humus is the Composition Root for the humus document store.
//
// It connects the core business logic (pkg/core) with the storage adapter
// (pkg/adapters/fs) and re-exports the functional options used to open a
// store.
//
// Philosophy:
//
// humus is an embedded, schema-less document store. Every document is a JSON
// object addressed by a string id and versioned by a revision token of the
// form "<generation>-<hash>". Writes are optimistic: an update or delete must
// name the current revision, and a stale one fails with core.ErrConflict.
// Retrying is left to the caller (see core.RetryOnConflict).
//
// Storage:
//
//   - **Append-Only Log**: every mutation is one checksummed, length-prefixed
//     record appended to humus.log. Nothing is rewritten in place.
//   - **In-Memory Index**: id to latest revision and log offset, rebuilt by
//     replaying the log on open. A torn record at the tail (a crash
//     mid-append) is discarded; corruption anywhere else is reported.
//   - **Snapshot**: an optional copy of the index under .humus/ shortens
//     replay. It is checked against the log and dropped when it disagrees.
//   - **Change Feed**: committed mutations are published to Watch
//     subscribers, filtered by a glob pattern on ids.
//
// Usage:
//
//	svc, err := humus.New("./data", humus.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	id, rev, err := svc.Create(ctx, core.Object(map[string]core.Value{
//		"title": core.String("hello"),
//	}), "")
package humus
