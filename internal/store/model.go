package store

import "time"

// Meta describes a file snapshot so the format can evolve.
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// PersistAccount is one account as written to a snapshot.
type PersistAccount struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

// Snapshot is the on-disk layout of the file backend.
type Snapshot struct {
	Meta     Meta             `json:"_meta"`
	Accounts []PersistAccount `json:"accounts"`
}

const snapshotVersion = 1
