package flow

import (
	"hash/fnv"
	"sync"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// Close reasons reported on emitted flow records.
const (
	CloseWindow = "window"
	CloseCap    = "cap"
	CloseFIN    = "fin"
	CloseRST    = "rst"
	CloseDrain  = "drain"
)

type shard struct {
	mu    sync.Mutex
	flows map[string]*model.FlowRecord
}

// Aggregator groups packet events into per-key tumbling windows using a
// sharded map. A flow record closes when its window elapses, when it hits the
// packet cap, or when a FIN/RST terminates the connection; closed records are
// emitted on Out and never reopened — a late packet for the same key opens a
// fresh window.
type Aggregator struct {
	shards     []*shard
	shardCount uint32
	window     time.Duration
	packetCap  uint64
	sweepEvery time.Duration

	In  chan *model.PacketEvent
	Out chan model.FlowRecord

	now  func() time.Time
	wg   sync.WaitGroup
	done chan struct{}
}

// NewAggregator builds an aggregator from the flow section of the config.
func NewAggregator(cfg config.FlowConfig) *Aggregator {
	a := &Aggregator{
		shards:     make([]*shard, cfg.NumShards),
		shardCount: cfg.NumShards,
		window:     cfg.Window,
		packetCap:  cfg.PacketCap,
		sweepEvery: cfg.SweepInterval,
		In:         make(chan *model.PacketEvent, cfg.OutputBuffer),
		Out:        make(chan model.FlowRecord, cfg.OutputBuffer),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for i := range a.shards {
		a.shards[i] = &shard{flows: make(map[string]*model.FlowRecord)}
	}
	return a
}

// Start launches the packet workers and the window sweeper.
func (a *Aggregator) Start(numWorkers int) {
	a.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go a.worker()
	}
	go a.sweeper()
}

// Stop drains in-flight packets, flushes every open flow and closes Out.
// Callers must stop feeding In first.
func (a *Aggregator) Stop() {
	close(a.In)
	a.wg.Wait()
	close(a.done)
	a.drainAll()
	close(a.Out)
}

func (a *Aggregator) worker() {
	defer a.wg.Done()
	for ev := range a.In {
		a.Process(ev)
	}
}

func (a *Aggregator) sweeper() {
	ticker := time.NewTicker(a.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Sweep(a.now())
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return a.shards[h.Sum32()%a.shardCount]
}

// Process folds one packet event into its flow record. Safe for concurrent
// use; events for the same key are serialized by the shard lock.
func (a *Aggregator) Process(ev *model.PacketEvent) {
	key := ev.FiveTuple.Key()
	s := a.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[key]
	if ok && !ev.Timestamp.Before(rec.WindowEnd) {
		// Window elapsed; close the old record before opening the next.
		a.emitLocked(s, key, rec, CloseWindow)
		ok = false
	}
	if !ok {
		rec = &model.FlowRecord{
			Key:         key,
			FiveTuple:   ev.FiveTuple,
			WindowStart: ev.Timestamp,
			WindowEnd:   ev.Timestamp.Add(a.window),
			FirstSeen:   ev.Timestamp,
		}
		s.flows[key] = rec
		metrics.ActiveFlows.Inc()
	}

	if rec.PacketCount > 0 && ev.Timestamp.After(rec.LastSeen) {
		iat := ev.Timestamp.Sub(rec.LastSeen).Seconds()
		rec.IATCount++
		delta := iat - rec.IATMean
		rec.IATMean += delta / float64(rec.IATCount)
		rec.IATM2 += delta * (iat - rec.IATMean)
	}
	rec.PacketCount++
	rec.ByteCount += uint64(ev.Length)
	rec.LastSeen = ev.Timestamp
	for bit := 0; bit < 6; bit++ {
		if ev.TCPFlags&(1<<bit) != 0 {
			rec.FlagCounts[bit]++
		}
	}

	switch {
	case ev.TCPFlags&model.FlagRST != 0:
		rec.RSTSeen = true
		a.emitLocked(s, key, rec, CloseRST)
	case ev.TCPFlags&model.FlagFIN != 0:
		rec.FINSeen = true
		a.emitLocked(s, key, rec, CloseFIN)
	case rec.PacketCount >= a.packetCap:
		a.emitLocked(s, key, rec, CloseCap)
	}
}

// Sweep closes every flow whose window has elapsed as of now. Called by the
// internal ticker and directly by tests.
func (a *Aggregator) Sweep(now time.Time) {
	for _, s := range a.shards {
		s.mu.Lock()
		for key, rec := range s.flows {
			if !now.Before(rec.WindowEnd) {
				a.emitLocked(s, key, rec, CloseWindow)
			}
		}
		s.mu.Unlock()
	}
}

func (a *Aggregator) drainAll() {
	var n int
	for _, s := range a.shards {
		s.mu.Lock()
		for key, rec := range s.flows {
			a.emitLocked(s, key, rec, CloseDrain)
			n++
		}
		s.mu.Unlock()
	}
	if n > 0 {
		logger.Infof("flow: drained %d open flows on shutdown", n)
	}
}

// emitLocked hands a closed record downstream and removes it from the shard.
// The record is copied by value; the aggregator keeps no reference.
func (a *Aggregator) emitLocked(s *shard, key string, rec *model.FlowRecord, reason string) {
	delete(s.flows, key)
	metrics.ActiveFlows.Dec()
	metrics.FlowsClosedTotal.WithLabelValues(reason).Inc()

	// An early close (cap, FIN, RST, drain) ends the window at the last
	// packet, so a reopened flow for the same key can never start inside a
	// span already handed downstream.
	if reason != CloseWindow && rec.LastSeen.Before(rec.WindowEnd) {
		rec.WindowEnd = rec.LastSeen
	}

	out := *rec
	select {
	case a.Out <- out:
		return
	default:
	}
	select {
	case <-a.Out:
		metrics.DroppedTotal.WithLabelValues("flow").Inc()
	default:
	}
	select {
	case a.Out <- out:
	default:
		metrics.DroppedTotal.WithLabelValues("flow").Inc()
	}
}

// ActiveCount reports open flows across all shards.
func (a *Aggregator) ActiveCount() int {
	count := 0
	for _, s := range a.shards {
		s.mu.Lock()
		count += len(s.flows)
		s.mu.Unlock()
	}
	return count
}

// SetClock overrides the sweeper clock. Tests only.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}
