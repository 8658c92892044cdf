package taskrelay

import (
	"database/sql"

	"github.com/tsudo/taskrelay/internal/coordinator"
	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	workerpkg "github.com/tsudo/taskrelay/pkg/worker"
)

// WorkerBundle wires together a Coordinator, a durable task queue, and a
// Worker that consumes tasks from that queue.
type WorkerBundle struct {
	Coordinator Coordinator
	Worker      *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Coordinator and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Coordinator + Queue + Worker combo
// sharing the same SQLite database. Instances and queued tasks survive a
// process restart; call Coordinator.Recover on startup to resume them.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:taskrelay.db?_journal=WAL")
//	bundle, err := taskrelay.NewSQLiteBundle(db, activity, notifier, taskrelay.Config{})
//	go bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, activity Activity, notifier Notifier, cfg Config) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(store, q, activity, notifier, cfg.internal())
	w := workerpkg.New(coord, q, cfg.Logger)

	return &WorkerBundle{
		Coordinator: coord,
		Worker:      w,
		queue:       q,
	}, nil
}
