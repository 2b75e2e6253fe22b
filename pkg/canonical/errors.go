package canonical

// NoSnapshotError is returned by Build when the source StructureDefinition
// has no (or an empty) snapshot — the Canonical Builder never generates
// one itself; that is pkg/snapshot's job.
type NoSnapshotError struct {
	URL string
}

func (e *NoSnapshotError) Error() string {
	return "canonical: " + e.URL + " has no snapshot to build from"
}
