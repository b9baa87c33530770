package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// SpeedtestPing measures latency to the nearest speedtest.net servers. It
// does not run download or upload tests.
//
// kwargs:
//   - servers: candidates to ping, nearest first (default 3)
//   - max_latency: fail with KindLatency above this Go duration (default off)
func SpeedtestPing(log logx.Logger) loop.WorkFunc {
	return func(ctx context.Context, inv loop.Invocation) error {
		n, err := intKwarg(inv.Kwargs, "servers", 3)
		if err != nil {
			return fmt.Errorf("speedtest_ping: %w", err)
		}
		if n <= 0 {
			n = 3
		}
		maxLatency, err := durationKwarg(inv.Kwargs, "max_latency", 0)
		if err != nil {
			return fmt.Errorf("speedtest_ping: %w", err)
		}

		// A fresh client per run; the package-level default retains data between runs.
		st := speedtest.New()
		defer st.Reset()

		servers, err := st.FetchServerListContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return loop.Fail(KindNetwork, fmt.Errorf("fetch server list: %w", err))
		}
		if a := servers.Available(); a != nil {
			servers = *a
		}
		if len(servers) == 0 {
			return loop.Fail(KindNoServers, errors.New("no servers available"))
		}
		sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
		if n > len(servers) {
			n = len(servers)
		}

		var best *speedtest.Server
		for _, s := range servers[:n] {
			if err := s.PingTestContext(ctx, nil); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Debug("ping failed", logx.String("server", s.Host), logx.Err(err))
				continue
			}
			if s.Latency > 0 && (best == nil || s.Latency < best.Latency) {
				best = s
			}
		}
		if best == nil {
			return loop.Fail(KindNetwork, errors.New("all latency tests failed"))
		}

		log.Info("speedtest ping",
			logx.String("task", inv.Task),
			logx.String("server", best.Sponsor),
			logx.String("country", best.Country),
			logx.Duration("latency", best.Latency),
			logx.Duration("jitter", best.Jitter),
		)
		if maxLatency > 0 && best.Latency > maxLatency {
			return loop.Fail(KindLatency, fmt.Errorf("latency %s above %s", best.Latency.Round(time.Millisecond), maxLatency))
		}
		return nil
	}
}
