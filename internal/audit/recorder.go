package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// genesisPrevHash seeds the chain before any entry exists.
var genesisPrevHash = strings.Repeat("0", 64)

// Recorder is the single writer of the tamper-evident audit chain. Every
// finalized alert becomes exactly one chain entry: enqueueing blocks rather
// than drops, duplicate alert IDs are absorbed, and journal write failures
// are retried until they succeed. Completed records are handed to publish
// for fan-out.
type Recorder struct {
	journalPath  string
	retryBackoff time.Duration
	publish      func(model.AlertRecord)

	queue chan model.Alert
	wg    sync.WaitGroup

	mu      sync.Mutex
	entries []model.AuditEntry
	seen    map[string]struct{}

	file *os.File
}

// NewRecorder opens (or creates) the journal and replays any existing
// entries so that a restart continues the chain instead of forking it.
func NewRecorder(cfg config.AuditConfig, publish func(model.AlertRecord)) (*Recorder, error) {
	r := &Recorder{
		journalPath:  cfg.JournalPath,
		retryBackoff: cfg.RetryBackoff,
		publish:      publish,
		queue:        make(chan model.Alert, cfg.QueueSize),
		seen:         make(map[string]struct{}),
	}

	if err := r.replay(); err != nil {
		return nil, err
	}
	if len(r.entries) == 0 {
		genesis := model.AuditEntry{
			Index:     0,
			Timestamp: time.Now().UTC(),
			PrevHash:  genesisPrevHash,
		}
		genesis.Hash = entryHash(genesis)
		r.entries = append(r.entries, genesis)
		if err := r.appendJournal(genesis); err != nil {
			return nil, fmt.Errorf("write genesis entry: %w", err)
		}
	}

	logger.Infof("audit: chain ready at height %d (journal %s)", len(r.entries)-1, cfg.JournalPath)
	return r, nil
}

// replay rebuilds the in-memory chain from the journal file, if present.
func (r *Recorder) replay() error {
	if r.journalPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.journalPath), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	f, err := os.Open(r.journalPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("corrupt journal line %d: %w", len(r.entries)+1, err)
		}
		r.entries = append(r.entries, entry)
		if entry.AlertID != "" {
			r.seen[entry.AlertID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(r.entries) > 0 {
		if err := verifyChain(r.entries); err != nil {
			return fmt.Errorf("journal failed verification: %w", err)
		}
	}
	return nil
}

// Start launches the single chain writer.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop drains the queue, flushes the journal and stops the writer. Callers
// must stop calling Enqueue first.
func (r *Recorder) Stop() {
	close(r.queue)
	r.wg.Wait()
	if r.file != nil {
		r.file.Close()
	}
}

// Enqueue hands an alert to the recorder. Blocks when the queue is full:
// audit completeness outranks dispatch latency.
func (r *Recorder) Enqueue(alert model.Alert) {
	r.queue <- alert
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for alert := range r.queue {
		r.record(alert)
	}
}

// record appends one alert to the chain. Duplicate alert IDs (redelivery
// after a crash) are dropped silently, which keeps replay idempotent.
func (r *Recorder) record(alert model.Alert) {
	r.mu.Lock()
	if _, dup := r.seen[alert.ID]; dup {
		r.mu.Unlock()
		logger.Debugf("audit: duplicate alert %s ignored", alert.ID)
		return
	}
	prev := r.entries[len(r.entries)-1]
	entry := model.AuditEntry{
		Index:     prev.Index + 1,
		Timestamp: time.Now().UTC(),
		AlertID:   alert.ID,
		AlertHash: alertHash(alert),
		PrevHash:  prev.Hash,
	}
	entry.Hash = entryHash(entry)
	r.entries = append(r.entries, entry)
	r.seen[alert.ID] = struct{}{}
	r.mu.Unlock()

	for {
		err := r.appendJournal(entry)
		if err == nil {
			break
		}
		metrics.AuditRetriesTotal.Inc()
		logger.Errorf("audit: journal append failed: %v, retrying in %v", err, r.retryBackoff)
		time.Sleep(r.retryBackoff)
	}
	metrics.AuditEntriesTotal.Inc()

	if r.publish != nil {
		r.publish(model.AlertRecord{Alert: alert, Audit: entry})
	}
}

func (r *Recorder) appendJournal(entry model.AuditEntry) error {
	if r.journalPath == "" {
		return nil
	}
	if r.file == nil {
		f, err := os.OpenFile(r.journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		r.file = f
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := r.file.Write(append(data, '\n')); err != nil {
		// Reopen on the next attempt; the handle may be stale.
		r.file.Close()
		r.file = nil
		return err
	}
	return r.file.Sync()
}

// Verify walks the whole chain and reports the first broken link.
func (r *Recorder) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return verifyChain(r.entries)
}

// Height returns the index of the newest entry.
func (r *Recorder) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1].Index
}

// Entries returns a copy of the chain, newest last.
func (r *Recorder) Entries() []model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func verifyChain(entries []model.AuditEntry) error {
	for i, entry := range entries {
		if entry.Hash != entryHash(entry) {
			return fmt.Errorf("entry %d: hash mismatch", entry.Index)
		}
		if i == 0 {
			if entry.PrevHash != genesisPrevHash {
				return fmt.Errorf("genesis entry has prev hash %s", entry.PrevHash)
			}
			continue
		}
		if entry.PrevHash != entries[i-1].Hash {
			return fmt.Errorf("entry %d: broken link to entry %d", entry.Index, entries[i-1].Index)
		}
		if entry.Index != entries[i-1].Index+1 {
			return fmt.Errorf("entry %d: non-monotonic index", entry.Index)
		}
	}
	return nil
}

// alertHash fingerprints the alert content that the chain commits to.
func alertHash(alert model.Alert) string {
	data, _ := json.Marshal(alert)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// entryHash covers every field except the hash itself.
func entryHash(entry model.AuditEntry) string {
	payload := fmt.Sprintf("%d|%d|%s|%s|%s",
		entry.Index, entry.Timestamp.UnixNano(), entry.AlertID, entry.AlertHash, entry.PrevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
