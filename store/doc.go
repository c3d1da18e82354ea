// Package store persists terminal run traces to a relational database
// through GORM, implementing the engine's TraceStore hook. The bundled
// dialector is the pure-Go sqlite driver; any GORM dialector works.
package store
