package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"looptask/internal/app"
)

func main() {
	var (
		cfgPath string
		history string
		limit   int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&history, "history", "", "print recent runs of a task (\"all\" for every task) and exit")
	flag.IntVar(&limit, "n", 20, "number of runs printed with -history")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if history != "" {
		if err := printHistory(ctx, cfgPath, history, limit); err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			os.Exit(1)
		}
		return
	}

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	_ = a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func printHistory(ctx context.Context, cfgPath, name string, n int) error {
	if name == "all" {
		name = ""
	}
	runs, err := app.ReadHistory(ctx, cfgPath, name, n)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tITER\tSTARTED\tDURATION\tRESULT")
	for _, r := range runs {
		result := "ok"
		if !r.OK() {
			result = r.Error
			if r.Tolerated {
				result = "tolerated: " + result
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.Task, r.Iteration, r.Started.Format(time.RFC3339), time.Duration(r.DurationMS)*time.Millisecond, result)
	}
	return w.Flush()
}
