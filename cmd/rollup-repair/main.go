// rollup-repair re-runs edge wiring for already-consolidated periods.
// Summaries are never created here; the tool only restores SUMMARIZES,
// cross-summary, participation, and concept edges that went missing.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/vthunder/rollup/internal/config"
	"github.com/vthunder/rollup/internal/edges"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
	"github.com/vthunder/rollup/internal/query"
)

func main() {
	dbPath := flag.String("db", config.Default().DBPath, "Path to graph database")
	startStr := flag.String("start", "", "Start of range, RFC3339 (default: oldest summary)")
	endStr := flag.String("end", "", "End of range, RFC3339 (default: now)")
	periodHours := flag.Int("period-hours", config.Default().PeriodHours, "Consolidation period width in hours")
	cleanup := flag.Bool("cleanup", true, "Also delete orphaned edges after repair")
	flag.Parse()

	store, err := graph.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open graph database: %v", err)
	}
	defer store.Close()

	q := query.NewManager(store)
	mgr := edges.NewManager(store, q)
	periods := period.NewManager(time.Duration(*periodHours) * time.Hour)

	start, end, err := resolveRange(q, *startStr, *endStr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Repairing summary edges from %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))

	total := 0
	periodCount := 0
	cursor, _ := periods.Boundaries(start)
	for cursor.Before(end) {
		p := periods.At(cursor)
		created, err := mgr.EnsureSummaryEdges(p.Start, p.End)
		if err != nil {
			log.Fatalf("Repair failed for period %s: %v", p.Label, err)
		}
		if created > 0 {
			log.Printf("  %s: created %d edges", p.Label, created)
		}
		total += created
		periodCount++
		cursor = p.End
	}

	log.Printf("Repair complete: %d edges created across %d periods", total, periodCount)

	if *cleanup {
		removed, err := mgr.CleanupOrphanedEdges()
		if err != nil {
			log.Fatalf("Orphan cleanup failed: %v", err)
		}
		log.Printf("Removed %d orphaned edges", removed)
	}
}

func resolveRange(q *query.Manager, startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return start, end, err
		}
	} else {
		oldest, ok, err := q.OldestSummaryPeriod()
		if err != nil {
			return start, end, err
		}
		if !ok {
			log.Println("No summaries exist, nothing to repair")
			return time.Now().UTC(), time.Now().UTC(), nil
		}
		start = oldest
	}

	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return start, end, err
		}
	} else {
		end = time.Now().UTC()
	}
	return start.UTC(), end.UTC(), nil
}
