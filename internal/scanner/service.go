package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cadenza/internal/catalog"
	"cadenza/internal/logging"
)

const EventProgress = "scanner:progress"

// ErrSyncRunning is returned when a pass is triggered while one is active.
var ErrSyncRunning = errors.New("sync already in progress")

type Progress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
	At      string `json:"at"`
}

type Status struct {
	Running       bool   `json:"running"`
	LastRunAt     string `json:"lastRunAt"`
	LastError     string `json:"lastError,omitempty"`
	LastFilesSeen int    `json:"lastFilesSeen"`
	LastIndexed   int    `json:"lastIndexed"`
	LastPruned    int    `json:"lastPruned"`
	LastDiscarded int    `json:"lastDiscarded"`
}

type Emitter func(eventName string, payload any)

// Service serializes synchronization passes over one library and publishes
// each completed snapshot. The same mutex guards edit sessions, so a
// debounced resync never starts while the catalog is being edited.
type Service struct {
	engine *Engine
	holder *catalog.Holder
	root   string
	log    *log.Logger

	runMu sync.Mutex // held for the whole of a pass or an edit session

	mu            sync.Mutex // guards the fields below
	running       bool
	cancel        context.CancelFunc
	lastRun       time.Time
	lastError     string
	lastFilesSeen int
	lastIndexed   int
	lastPruned    int
	lastDiscarded int
	emit          Emitter
}

func NewService(database *sql.DB, root string, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		engine: NewEngine(database, opts),
		holder: catalog.NewHolder(),
		root:   root,
		log:    logger,
	}
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

// Snapshot returns the latest published catalog snapshot.
func (s *Service) Snapshot() *catalog.Snapshot {
	return s.holder.Current()
}

// Sync runs one full pass and blocks until it finishes. The snapshot is
// published only when the pass completes; a cancelled or failed pass leaves
// the previous snapshot in place.
func (s *Service) Sync(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSyncRunning
	}
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.emitProgress(Progress{
		Phase:   "start",
		Message: "Starting library sync",
		Status:  "running",
		At:      time.Now().UTC().Format(time.RFC3339),
	})

	snapshot, totals, err := s.engine.Run(runCtx, s.root)

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
		s.lastRun = time.Now().UTC()
		s.lastFilesSeen = totals.AudioSeen + totals.ImagesSeen + totals.PlaylistsSeen
		s.lastIndexed = totals.NewTracks
		s.lastPruned = totals.Pruned
		s.lastDiscarded = totals.Discarded
	}
	s.mu.Unlock()

	if err != nil {
		s.emitProgress(Progress{
			Phase:   "failed",
			Message: err.Error(),
			Percent: 100,
			Status:  "failed",
			At:      time.Now().UTC().Format(time.RFC3339),
		})
		return err
	}

	s.holder.Publish(snapshot)
	s.emitProgress(Progress{
		Phase: "done",
		Message: fmt.Sprintf(
			"Sync complete: %d files seen, %d indexed, %d pruned, %d discarded",
			totals.AudioSeen+totals.ImagesSeen+totals.PlaylistsSeen,
			totals.NewTracks,
			totals.Pruned,
			totals.Discarded,
		),
		Percent: 100,
		Status:  "completed",
		At:      time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// TriggerFullSync starts a pass in the background. It reports ErrSyncRunning
// when one is already active instead of queueing.
func (s *Service) TriggerFullSync() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSyncRunning
	}
	s.mu.Unlock()

	go func() {
		if err := s.Sync(context.Background()); err != nil && !errors.Is(err, ErrSyncRunning) {
			s.log.Printf("[ERROR] background sync: %v", err)
		}
	}()
	return nil
}

// CancelSync aborts the active pass, if any. The pass stops at its next
// cancellation point and nothing is published.
func (s *Service) CancelSync() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// BeginEdit takes the sync lock for a manual catalog edit. No pass can start
// until EndEdit. The triggering side gets ErrSyncRunning-free blocking, not
// an error: a debounced resync simply waits.
func (s *Service) BeginEdit() {
	s.runMu.Lock()
}

func (s *Service) EndEdit() {
	s.runMu.Unlock()
}

func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		LastError:     s.lastError,
		LastFilesSeen: s.lastFilesSeen,
		LastIndexed:   s.lastIndexed,
		LastPruned:    s.lastPruned,
		LastDiscarded: s.lastDiscarded,
	}
	if !s.lastRun.IsZero() {
		status.LastRunAt = s.lastRun.UTC().Format(time.RFC3339)
	}

	return status
}

func (s *Service) emitProgress(progress Progress) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()

	if emit != nil {
		emit(EventProgress, progress)
	}
}
