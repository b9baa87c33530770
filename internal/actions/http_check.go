package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// HTTPCheck requests kwargs.url and checks the status code.
//
// kwargs:
//   - url (required)
//   - method: default GET
//   - expect: exact status code; default accepts any 2xx
//   - timeout: per-request Go duration, default 10s
//
// Transport errors fail with KindNetwork, unexpected codes with
// KindHTTPStatus and a timed out request with loop.KindTimeout.
func HTTPCheck(client *http.Client, log logx.Logger) loop.WorkFunc {
	return func(ctx context.Context, inv loop.Invocation) error {
		url := stringKwarg(inv.Kwargs, "url", "")
		if url == "" {
			return errors.New("http_check: kwargs.url is required")
		}
		method := strings.ToUpper(stringKwarg(inv.Kwargs, "method", http.MethodGet))
		expect, err := intKwarg(inv.Kwargs, "expect", 0)
		if err != nil {
			return fmt.Errorf("http_check: %w", err)
		}
		timeout, err := durationKwarg(inv.Kwargs, "timeout", 10*time.Second)
		if err != nil {
			return fmt.Errorf("http_check: %w", err)
		}

		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(rctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("http_check: %w", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return loop.Fail(loop.KindTimeout, fmt.Errorf("%s %s: %w", method, url, err))
			}
			return loop.Fail(KindNetwork, fmt.Errorf("%s %s: %w", method, url, err))
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		took := time.Since(start)

		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		if expect != 0 {
			ok = resp.StatusCode == expect
		}
		if !ok {
			return loop.Fail(KindHTTPStatus, fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode))
		}
		log.Debug("check ok",
			logx.String("task", inv.Task),
			logx.String("url", url),
			logx.Int("status", resp.StatusCode),
			logx.Duration("took", took),
		)
		return nil
	}
}
