package testsupport

import (
	"context"
	"testing"

	"dvrestore/internal/config"
	"dvrestore/internal/journal"
)

// MustOpenJournal opens the journal at the config's path and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg.Paths.JournalPath)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJournal opens a journal backed by a fresh test config.
func NewJournal(t testing.TB) *journal.Store {
	t.Helper()
	return MustOpenJournal(t, NewConfig(t))
}

// NewRun creates a running journal row for tests.
func NewRun(t testing.TB, store *journal.Store, prefix string, captures ...string) *journal.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), journal.RunSpec{
		OutputPrefix: prefix,
		Captures:     captures,
		Format:       "ntsc-25",
		Strategy:     "score",
	})
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
