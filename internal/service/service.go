// Package service runs the consolidation loop: period discovery, the
// per-period pipeline (query, convert, consolidate, wire edges), cleanup,
// and lifecycle. A single background goroutine owns the whole pipeline;
// there is exactly one writer by construction. Scaling to multiple
// instances would need a distributed lock around the per-period gate and
// the temporal relink, which is out of scope here.
package service

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/vthunder/rollup/internal/config"
	"github.com/vthunder/rollup/internal/consolidate"
	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/edges"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/logging"
	"github.com/vthunder/rollup/internal/period"
	"github.com/vthunder/rollup/internal/query"
)

// Service is the consolidation orchestrator
type Service struct {
	store   *graph.Store
	query   *query.Manager
	edges   *edges.Manager
	periods *period.Manager
	cfg     config.Config

	// clock is injectable for deterministic tests
	clock func() time.Time

	// cycleMu guarantees only one consolidation cycle is in flight
	cycleMu sync.Mutex

	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	done      chan struct{}
	lastCycle time.Time
}

// CycleResult summarizes one consolidation cycle
type CycleResult struct {
	PeriodsProcessed int
	PeriodsSkipped   int
	SummariesCreated int
	EdgesCreated     int
	OrphansRemoved   int
}

// Status is the health/status view exposed to operators
type Status struct {
	Running   bool      `json:"running"`
	TaskAlive bool      `json:"task_alive"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
}

// New creates a consolidation service over the given store
func New(store *graph.Store, cfg config.Config) *Service {
	q := query.NewManager(store)
	return &Service{
		store:   store,
		query:   q,
		edges:   edges.NewManager(store, q),
		periods: period.NewManager(cfg.PeriodWidth()),
		cfg:     cfg,
		clock:   time.Now,
	}
}

// EdgeManager exposes the edge manager for out-of-band repair tooling
func (s *Service) EdgeManager() *edges.Manager {
	return s.edges
}

// Start launches the background consolidation loop
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
	logging.Info("service", "started (period=%dh, max_periods=%d, retention=%dh)",
		s.cfg.PeriodHours, s.cfg.MaxPeriodsPerRun, s.cfg.RawRetentionHours)
}

// Stop cancels the loop, letting any in-flight cycle finish, then runs one
// final best-effort consolidation pass.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done

	if _, err := s.RunCycle(); err != nil {
		logging.Warn("service", "final consolidation pass failed: %v", err)
	}
	logging.Info("service", "stopped")
}

// Status reports the running flag, last successful cycle, and whether the
// background task is alive.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	alive := false
	if s.done != nil {
		select {
		case <-s.done:
		default:
			alive = true
		}
	}
	return Status{Running: s.running, TaskAlive: alive, LastCycle: s.lastCycle}
}

func (s *Service) loop() {
	defer close(s.done)
	for {
		now := s.clock()
		next := s.periods.NextStart(now)
		select {
		case <-s.stopChan:
			return
		case <-time.After(next.Sub(now)):
		}

		if _, err := s.RunCycle(); err != nil {
			// Loop-level failure: fixed backoff, never terminate
			logging.Warn("service", "cycle failed, backing off %v: %v", s.cfg.ErrorBackoff(), err)
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.cfg.ErrorBackoff()):
			}
		}
	}
}

// RunCycle executes one consolidation cycle: find the oldest raw data,
// walk periods forward to the retention cutoff consolidating up to
// max_periods_per_run of them, then clean up orphaned edges. A failure in
// a single period is logged and skipped; that period stays unconsolidated
// and is retried on the next cycle.
func (s *Service) RunCycle() (CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	var res CycleResult

	oldest, ok, err := s.query.OldestRawTimestamp()
	if err != nil {
		return res, fmt.Errorf("failed to find oldest raw data: %w", err)
	}
	if !ok {
		logging.Debug("service", "no raw data to consolidate")
		s.markCycleDone()
		return res, nil
	}

	// Periods still inside the retention window are never touched: data
	// for them may still be arriving.
	cutoff := s.clock().Add(-s.cfg.RawRetention())
	start, _ := s.periods.Boundaries(oldest)

	// Only periods that actually produce summaries count against the
	// per-run budget. Raw-data deletion is external and may lag far behind
	// the frontier; if consolidated or empty periods consumed the budget,
	// a stale backlog would pin every cycle to the same stretch of history
	// and newer periods would never be reached.
	produced := 0
	for produced < s.cfg.MaxPeriodsPerRun {
		p := s.periods.At(start)
		if p.End.After(cutoff) {
			break
		}

		before := res.PeriodsProcessed
		if err := s.consolidatePeriod(p, &res); err != nil {
			// Period-level failure: abandon this period for the cycle
			logging.Warn("service", "period %s failed: %v", p.Label, err)
		}
		if res.PeriodsProcessed > before {
			produced++
		}
		start = p.End
	}

	removed, err := s.edges.CleanupOrphanedEdges()
	if err != nil {
		logging.Warn("service", "orphan cleanup failed: %v", err)
	}
	res.OrphansRemoved = removed

	s.logResourceUsage()
	s.markCycleDone()

	if res.PeriodsProcessed > 0 || res.SummariesCreated > 0 {
		logging.Info("service", "cycle complete: %d periods, %d summaries, %d edges, %d orphans removed",
			res.PeriodsProcessed, res.SummariesCreated, res.EdgesCreated, res.OrphansRemoved)
	}
	return res, nil
}

func (s *Service) markCycleDone() {
	s.mu.Lock()
	s.lastCycle = s.clock()
	s.mu.Unlock()
}

// consolidatePeriod runs the full pipeline for one period. Each summary
// insert is its own small transaction, so a failure in a later category
// never rolls back an earlier category's summary; the worst outcome is
// missing edges, which EnsureSummaryEdges can heal.
func (s *Service) consolidatePeriod(p period.Period, res *CycleResult) error {
	// Query failures degrade to empty input for the affected category
	byType, err := s.query.NodesInPeriod(p.Start, p.End)
	if err != nil {
		logging.Warn("service", "period %s: node query failed, treating as empty: %v", p.Label, err)
		byType = make(map[graph.NodeType][]*graph.Node)
	}
	interactions, points, spans, err := s.query.InteractionRecords(p.Start, p.End)
	if err != nil {
		logging.Warn("service", "period %s: record query failed, treating as empty: %v", p.Label, err)
	}
	tasks, err := s.query.TasksInPeriod(p.Start, p.End)
	if err != nil {
		logging.Warn("service", "period %s: task query failed, treating as empty: %v", p.Label, err)
	}

	// Raw timeseries lives in two places: metric_datapoint records and
	// metric_point nodes. Both feed the tsdb summary body.
	for _, n := range byType[graph.NodeMetricPoint] {
		if mp := convert.MetricPointFromNode(n); mp != nil {
			points = append(points, *mp)
		} else {
			logging.Warn("service", "period %s: dropping unconvertible metric_point node %s", p.Label, n.ID)
		}
	}

	var newResults []*consolidate.Result

	run := func(summaryType graph.NodeType, build func() *consolidate.Result) error {
		consolidated, err := s.query.IsPeriodConsolidated(summaryType, p.Start)
		if err != nil {
			return fmt.Errorf("gate check for %s: %w", summaryType, err)
		}
		if consolidated {
			res.PeriodsSkipped++
			return nil
		}
		r := build()
		if r == nil {
			// Nothing to summarize for this category: no empty summaries
			return nil
		}
		if err := s.store.AddNode(r.Summary); err != nil {
			return fmt.Errorf("failed to persist %s: %w", r.Summary.ID, err)
		}
		logging.Info("service", "created %s for period %s", r.Summary.ID, p.Label)
		res.SummariesCreated++
		newResults = append(newResults, r)
		return nil
	}

	eligible := consolidate.EligibleGeneralNodes(byType, consolidate.ClaimedIDs(interactions, spans, tasks))
	steps := []struct {
		summaryType graph.NodeType
		build       func() *consolidate.Result
	}{
		{graph.NodeTSDBSummary, func() *consolidate.Result {
			return consolidate.Metrics{}.Consolidate(p, points, eligible)
		}},
		{graph.NodeConversationSummary, func() *consolidate.Result {
			return consolidate.Conversation{}.Consolidate(p, interactions)
		}},
		{graph.NodeTraceSummary, func() *consolidate.Result {
			return consolidate.Trace{}.Consolidate(p, spans)
		}},
		{graph.NodeAuditSummary, func() *consolidate.Result {
			return consolidate.Audit{}.Consolidate(p, byType[graph.NodeAuditEntry])
		}},
		{graph.NodeTaskSummary, func() *consolidate.Result {
			return consolidate.Task{}.Consolidate(p, tasks)
		}},
	}
	for _, step := range steps {
		if err := run(step.summaryType, step.build); err != nil {
			return err
		}
	}

	if len(newResults) == 0 {
		return nil
	}
	res.PeriodsProcessed++

	// Edge wiring happens only after all summaries for the period exist.
	// Edge failures reduce to "missing edges" (repairable), never abort
	// the period.
	for _, r := range newResults {
		targets := summarizesTargets(r.Edges)
		created, err := s.edges.LinkSummaryToNodes(r.Summary, targets, graph.RelSummarizes, "consolidation")
		if err != nil {
			logging.Warn("service", "period %s: SUMMARIZES wiring for %s failed: %v", p.Label, r.Summary.ID, err)
		}
		res.EdgesCreated += created

		if len(r.Participants) > 0 {
			created, err := s.edges.LinkUserParticipation(r.Summary, r.Participants)
			if err != nil {
				logging.Warn("service", "period %s: participation wiring failed: %v", p.Label, err)
			}
			res.EdgesCreated += created
		}
	}

	// Cross-summary and memory edges consider pre-existing summaries too,
	// so a category consolidated in an earlier cycle still gets linked.
	allSummaries, err := s.query.SummariesInPeriod(p.Start)
	if err != nil {
		logging.Warn("service", "period %s: summary listing failed: %v", p.Label, err)
		allSummaries = nil
	}
	if len(allSummaries) > 0 {
		created, err := s.edges.LinkCrossSummaries(allSummaries)
		if err != nil {
			logging.Warn("service", "period %s: cross-summary wiring failed: %v", p.Label, err)
		}
		res.EdgesCreated += created

		created, err = s.edges.CreateEdgesBatch(consolidate.Memory{}.Edges(allSummaries, byType))
		if err != nil {
			logging.Warn("service", "period %s: concept wiring failed: %v", p.Label, err)
		}
		res.EdgesCreated += created
	}

	// Temporal linking runs last, after the period's own edges were
	// attempted.
	for _, r := range newResults {
		summary := r.Summary
		_, hasNext, err := s.query.NextSummaryID(summary.Type, p.Start)
		if err != nil {
			logging.Warn("service", "period %s: next-summary lookup failed: %v", p.Label, err)
			continue
		}
		if hasNext {
			created, err := s.edges.LinkForwardIfNextExists(summary, p.Start)
			if err != nil {
				logging.Warn("service", "period %s: forward temporal link failed: %v", p.Label, err)
			}
			res.EdgesCreated += created
			continue
		}

		prevID, _, err := s.query.PreviousSummaryID(summary.Type, p.Start)
		if err != nil {
			logging.Warn("service", "period %s: previous-summary lookup failed: %v", p.Label, err)
			continue
		}
		created, err := s.edges.LinkTemporal(summary, prevID)
		if err != nil {
			logging.Warn("service", "period %s: temporal link failed: %v", p.Label, err)
		}
		res.EdgesCreated += created
	}

	return nil
}

// summarizesTargets extracts the SUMMARIZES target ids from a result's
// edge specs.
func summarizesTargets(specs []consolidate.EdgeSpec) []string {
	var targets []string
	for _, spec := range specs {
		if spec.Relationship == graph.RelSummarizes {
			targets = append(targets, spec.TargetID)
		}
	}
	return targets
}

// logResourceUsage records the engine's own process footprint after a
// cycle. Best effort; platforms without process stats just skip it.
func (s *Service) logResourceUsage() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return
	}
	cpu, _ := proc.CPUPercent()
	logging.Debug("service", "cycle footprint: rss=%.1fMB cpu=%.1f%%",
		float64(mem.RSS)/(1024*1024), cpu)
}
