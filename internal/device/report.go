package device

// Report is one appliance's state as returned by a remote poll.
type Report struct {
	ID    string
	Delta Delta
}

// Snapshot converts a first report into a seed snapshot.
func (r Report) Snapshot() Snapshot {
	return Snapshot{State: r.Delta.State.Clone(), Sensors: r.Delta.Sensors.Clone()}
}
