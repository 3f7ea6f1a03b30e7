package journal

// NewSQLStore would back the journal with an embedded SQL store in WAL
// mode, per the storage-backend contract's third variant. No embedded
// SQL driver appears anywhere in this module's dependency set (the
// corpus's SQL usage is all client/server, e.g. TiDB's own server code,
// never an embeddable single-process engine like SQLite), so this is
// contract-only: it documents the shape a real implementation would
// have without fabricating a driver dependency that isn't grounded in
// anything the pack actually uses.
func NewSQLStore(path string) (Store, error) {
	return nil, ErrBackendUnavailable
}
