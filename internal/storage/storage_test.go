package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "looptask/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "history.db")
			st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			ctx := context.Background()

			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			recs := []RunRecord{
				{Task: "healthcheck", Iteration: 1, Started: base, DurationMS: 12},
				{Task: "healthcheck", Iteration: 2, Started: base.Add(time.Minute), DurationMS: 15, Kind: "network", Tolerated: true, Error: "refused"},
				{Task: "other", Iteration: 1, Started: base.Add(2 * time.Minute), DurationMS: 3},
				{Task: "healthcheck", Iteration: 3, Started: base.Add(3 * time.Minute), DurationMS: 9},
			}
			for _, r := range recs {
				if err := st.AppendRun(ctx, r); err != nil {
					t.Fatalf("AppendRun: %v", err)
				}
			}

			got, err := st.RecentRuns(ctx, "healthcheck", 2)
			if err != nil {
				t.Fatalf("RecentRuns: %v", err)
			}
			if len(got) != 2 || got[0].Iteration != 3 || got[1].Iteration != 2 {
				t.Fatalf("RecentRuns(healthcheck, 2) = %+v", got)
			}
			if got[1].OK() || got[1].Kind != "network" || !got[1].Tolerated || got[1].Error != "refused" {
				t.Fatalf("failure record = %+v", got[1])
			}
			if !got[0].Started.Equal(recs[3].Started) {
				t.Fatalf("Started = %v, want %v", got[0].Started, recs[3].Started)
			}

			all, err := st.RecentRuns(ctx, "", 10)
			if err != nil {
				t.Fatalf("RecentRuns(all): %v", err)
			}
			if len(all) != 4 || all[0].Task != "healthcheck" || all[1].Task != "other" {
				t.Fatalf("RecentRuns(all) = %+v", all)
			}

			removed, err := st.Prune(ctx, base.Add(90*time.Second))
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if removed != 2 {
				t.Fatalf("removed = %d, want 2", removed)
			}
			if err := st.AppendRun(ctx, RunRecord{Task: "healthcheck", Iteration: 4, Started: base.Add(4 * time.Minute)}); err != nil {
				t.Fatalf("AppendRun after prune: %v", err)
			}
			left, err := st.RecentRuns(ctx, "healthcheck", 10)
			if err != nil {
				t.Fatalf("RecentRuns after prune: %v", err)
			}
			if len(left) != 2 || left[0].Iteration != 4 || left[1].Iteration != 3 {
				t.Fatalf("after prune = %+v", left)
			}
		})
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AppendRun(ctx, RunRecord{Task: "a", Iteration: 1}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.RecentRuns(ctx, "a", 5)
	if err != nil || len(got) != 1 || got[0].Started.IsZero() {
		t.Fatalf("RecentRuns after reopen = %+v, %v", got, err)
	}
}
