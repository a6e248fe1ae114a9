// Package internal documents the gaiacurves internals.
//
// The internal tree is organized by responsibility:
// - lightcurve: name resolution, DR2/DR1 retrieval and the batch coordinator
// - simbad, gaia: clients for the remote archives
// - api: HTTP handlers, middleware, problem details, and routing
// - storage: the optional Postgres run ledger and its migrations
// - jobs: River workers for batches queued through the API
// - plot: light-curve rendering
// - config, metrics, telemetry: shared infrastructure
// - archivetest: in-process fakes of the archives for tests
//
// Code in internal/ is not meant for external import.
package internal
