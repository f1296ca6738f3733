package ledger

// Journal is an undo log shared by every mutable ledger in a World. Each
// mutation appends the closure that restores the previous value, so any
// prefix of work can be rolled back to a snapshot.
type Journal struct {
	entries []func()
}

func NewJournal() *Journal {
	return &Journal{}
}

// Append records an undo step.
func (j *Journal) Append(undo func()) {
	j.entries = append(j.entries, undo)
}

// Snapshot returns an identifier for the current journal position.
func (j *Journal) Snapshot() int {
	return len(j.entries)
}

// RevertToSnapshot undoes every entry recorded after the snapshot, newest first.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i]()
	}
	if id < len(j.entries) {
		j.entries = j.entries[:id]
	}
}

// Commit discards all undo entries. Only the outermost caller may commit.
func (j *Journal) Commit() {
	j.entries = nil
}

// Len returns the number of pending undo entries.
func (j *Journal) Len() int {
	return len(j.entries)
}
