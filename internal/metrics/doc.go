// Package metrics exposes Prometheus collectors for the sync engine: events
// applied, duplicate frames dropped, send outcomes, failures by kind, and the
// push channel's connection state.
//
// All recording methods accept a nil receiver so components can be built
// without metrics in tests.
package metrics
