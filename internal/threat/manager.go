package threat

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"
)

// sourceState is the mutable escalation state for one source address. Only
// the owning shard's lock holder may touch it; external callers see copies.
type sourceState struct {
	phase         model.Phase
	risk          float64
	detections    int
	maxSeverity   model.Severity
	lastLabel     model.AttackType
	firstSeen     time.Time
	lastSeen      time.Time
	lastDecay     time.Time
	cooldownUntil time.Time
}

type stateShard struct {
	mu      sync.Mutex
	sources map[string]*sourceState
}

// Manager tracks per-source threat state across sharded maps and emits a
// Transition whenever a source crosses an alerting threshold. Risk decays
// exponentially between detections, so a burst long past stops alerting on
// its own.
type Manager struct {
	shards     []*stateShard
	shardCount uint32

	suspicionThreshold    float64
	confirmationThreshold float64
	highConfidence        float64
	cooldown              time.Duration
	retention             time.Duration
	halfLife              time.Duration
	sweepEvery            time.Duration

	Transitions chan model.Transition

	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager builds a threat manager from the threat section of the config.
func NewManager(cfg config.ThreatConfig) *Manager {
	m := &Manager{
		shards:                make([]*stateShard, cfg.Shards),
		shardCount:            cfg.Shards,
		suspicionThreshold:    float64(cfg.SuspicionThreshold),
		confirmationThreshold: float64(cfg.ConfirmationThreshold),
		highConfidence:        cfg.HighConfidence,
		cooldown:              cfg.Cooldown,
		retention:             cfg.Retention,
		halfLife:              cfg.DecayHalfLife,
		sweepEvery:            cfg.SweepInterval,
		Transitions:           make(chan model.Transition, cfg.TransitionBuffer),
		now:                   time.Now,
		done:                  make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &stateShard{sources: make(map[string]*sourceState)}
	}
	return m
}

// Start launches the periodic decay-and-eviction sweeper.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(m.now())
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the sweeper and closes the transition feed. Callers must stop
// calling Record first.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()
	close(m.Transitions)
}

func (m *Manager) getShard(source string) *stateShard {
	h := fnv.New32a()
	h.Write([]byte(source))
	return m.shards[h.Sum32()%m.shardCount]
}

// Record folds one classifier verdict into the source's state. At most one
// transition is emitted per call: the highest phase the detection reaches.
// Verdicts arriving during cooldown update state but never re-alert.
func (m *Manager) Record(det model.Detection) {
	source := det.Flow.FiveTuple.SrcIP.String()
	now := m.now()

	s := m.getShard(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sources[source]
	if !ok {
		if det.Label == model.AttackBenign {
			return // nothing to track
		}
		st = &sourceState{
			phase:       model.PhaseClean,
			maxSeverity: model.SeverityLow,
			firstSeen:   now,
			lastDecay:   now,
		}
		s.sources[source] = st
		metrics.TrackedSources.Inc()
	}

	st.decay(now, m.halfLife)
	st.lastSeen = now

	if st.phase == model.PhaseCooling {
		if now.Before(st.cooldownUntil) {
			// Dedup window: absorb the verdict silently.
			if det.Label != model.AttackBenign {
				st.observe(det)
			}
			return
		}
		st.phase = model.PhaseWatching
		st.cooldownUntil = time.Time{}
	}

	if det.Label == model.AttackBenign {
		return
	}
	st.observe(det)

	from := st.phase
	if st.phase == model.PhaseClean {
		st.phase = model.PhaseWatching
	}

	sev := model.BaseSeverity(det.Label)
	target := st.phase
	switch {
	case st.risk >= m.confirmationThreshold,
		sev == model.SeverityCritical && det.Confidence >= m.highConfidence:
		target = model.PhaseConfirmed
	case st.risk >= m.suspicionThreshold:
		target = model.PhaseSuspicious
	}

	if model.PhaseRank(target) <= model.PhaseRank(from) {
		return
	}
	st.phase = target
	if target != model.PhaseSuspicious && target != model.PhaseConfirmed {
		return
	}
	if target == model.PhaseConfirmed {
		// One alert per confirmation; everything else lands in cooldown.
		st.phase = model.PhaseCooling
		st.cooldownUntil = now.Add(m.cooldown)
	}

	m.Emit(model.Transition{
		Source:    source,
		From:      from,
		To:        target,
		Detection: det,
		RiskScore: st.risk,
		At:        now,
	})
}

// observe accumulates a malicious verdict into the risk score.
func (st *sourceState) observe(det model.Detection) {
	sev := model.BaseSeverity(det.Label)
	st.risk += model.SeverityWeight(sev) * det.Confidence
	st.detections++
	st.lastLabel = det.Label
	if model.SeverityRank(sev) > model.SeverityRank(st.maxSeverity) {
		st.maxSeverity = sev
	}
}

// decay applies exponential risk decay since the last update.
func (st *sourceState) decay(now time.Time, halfLife time.Duration) {
	if halfLife <= 0 || st.lastDecay.IsZero() {
		st.lastDecay = now
		return
	}
	dt := now.Sub(st.lastDecay)
	if dt <= 0 {
		return
	}
	st.risk *= math.Pow(0.5, dt.Seconds()/halfLife.Seconds())
	st.lastDecay = now
}

// Emit puts a transition on the feed without ever blocking: when the buffer
// is full the oldest queued transition is shed and counted. Also used by the
// engine for pipeline-health alerts.
func (m *Manager) Emit(tr model.Transition) {
	select {
	case m.Transitions <- tr:
		return
	default:
	}
	select {
	case <-m.Transitions:
		metrics.DroppedTotal.WithLabelValues("threat").Inc()
	default:
	}
	select {
	case m.Transitions <- tr:
	default:
		metrics.DroppedTotal.WithLabelValues("threat").Inc()
	}
}

// Sweep decays risk, expires cooldowns and evicts sources idle past the
// retention horizon. Called by the internal ticker and directly by tests.
func (m *Manager) Sweep(now time.Time) {
	var evicted int
	for _, s := range m.shards {
		s.mu.Lock()
		for source, st := range s.sources {
			st.decay(now, m.halfLife)
			if st.phase == model.PhaseCooling && !now.Before(st.cooldownUntil) {
				st.phase = model.PhaseWatching
				st.cooldownUntil = time.Time{}
			}
			if st.phase == model.PhaseSuspicious && st.risk < m.suspicionThreshold/2 {
				st.phase = model.PhaseWatching
			}
			if now.Sub(st.lastSeen) >= m.retention {
				delete(s.sources, source)
				metrics.TrackedSources.Dec()
				evicted++
			}
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		logger.Debugf("threat: evicted %d idle sources", evicted)
	}
}

// Lookup returns a snapshot of one source's state.
func (m *Manager) Lookup(source string) (model.ThreatState, bool) {
	s := m.getShard(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sources[source]
	if !ok {
		return model.ThreatState{}, false
	}
	return st.snapshot(source), true
}

// Snapshot returns the state of every tracked source, worst-first.
func (m *Manager) Snapshot() []model.ThreatState {
	var out []model.ThreatState
	for _, s := range m.shards {
		s.mu.Lock()
		for source, st := range s.sources {
			out = append(out, st.snapshot(source))
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func (st *sourceState) snapshot(source string) model.ThreatState {
	return model.ThreatState{
		Source:          source,
		Phase:           st.phase,
		RiskScore:       st.risk,
		TotalDetections: st.detections,
		MaxSeverity:     st.maxSeverity,
		LastLabel:       st.lastLabel,
		FirstSeen:       st.firstSeen,
		LastSeen:        st.lastSeen,
		CooldownUntil:   st.cooldownUntil,
	}
}

// SetClock overrides the manager clock. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
