package alert

import (
	"sync"

	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// subscriber owns one bounded mailbox and the writer draining it.
type subscriber struct {
	name    string
	mailbox chan model.AlertRecord
	writer  model.RecordWriter
}

// Hub fans finalized alert records out to registered writers. Each writer
// gets its own bounded mailbox; a slow or broken writer sheds its own oldest
// records and never stalls the others.
type Hub struct {
	mailboxSize int
	subs        []*subscriber
	wg          sync.WaitGroup
}

// NewHub sizes the per-subscriber mailboxes.
func NewHub(mailboxSize int) *Hub {
	return &Hub{mailboxSize: mailboxSize}
}

// Subscribe registers a writer under a name used in logs and drop metrics.
// Must be called before Start.
func (h *Hub) Subscribe(name string, w model.RecordWriter) {
	h.subs = append(h.subs, &subscriber{
		name:    name,
		mailbox: make(chan model.AlertRecord, h.mailboxSize),
		writer:  w,
	})
}

// Start launches one drain goroutine per subscriber.
func (h *Hub) Start() {
	for _, sub := range h.subs {
		h.wg.Add(1)
		go func(sub *subscriber) {
			defer h.wg.Done()
			for rec := range sub.mailbox {
				if err := sub.writer.WriteRecord(rec); err != nil {
					logger.Errorf("hub: %s write failed for alert %s: %v", sub.name, rec.Alert.ID, err)
				}
			}
		}(sub)
	}
}

// Publish delivers a record to every mailbox, dropping the oldest queued
// record of any subscriber that has fallen behind.
func (h *Hub) Publish(rec model.AlertRecord) {
	for _, sub := range h.subs {
		select {
		case sub.mailbox <- rec:
			continue
		default:
		}
		select {
		case <-sub.mailbox:
			metrics.DroppedTotal.WithLabelValues("hub:" + sub.name).Inc()
		default:
		}
		select {
		case sub.mailbox <- rec:
		default:
			metrics.DroppedTotal.WithLabelValues("hub:" + sub.name).Inc()
		}
	}
}

// Stop drains every mailbox and closes the writers. Callers must stop
// publishing first.
func (h *Hub) Stop() {
	for _, sub := range h.subs {
		close(sub.mailbox)
	}
	h.wg.Wait()
	for _, sub := range h.subs {
		if err := sub.writer.Close(); err != nil {
			logger.Warnf("hub: closing %s: %v", sub.name, err)
		}
	}
}
