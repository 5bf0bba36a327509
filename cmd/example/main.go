package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/twlite/hypercron"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := hypercron.NewConfig(
		"./data/hypercron.db",
		hypercron.WithRefreshInterval(10*time.Second),
		hypercron.WithLookAheadWindow(time.Minute),
		hypercron.WithRetry(3, time.Second, 30*time.Second),
		hypercron.WithMaxConcurrentExecutions(20),
		hypercron.WithLogger(logger),
		hypercron.WithOnError(func(identifier string, err error) {
			log.Printf("job %s failed permanently: %v", identifier, err)
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	scheduler, err := hypercron.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer scheduler.Destroy()

	ctx := context.Background()

	if _, err := scheduler.Schedule(ctx, hypercron.Cron("*/30 * * * * *"), "cache-refresh", func() error {
		fmt.Println("refreshing cache")
		return nil
	}); err != nil {
		log.Fatal(err)
	}

	if _, err := scheduler.Schedule(ctx, hypercron.At(time.Now().Add(2*time.Minute)), "startup-report", func() error {
		fmt.Println("sending startup report")
		return nil
	}); err != nil {
		log.Fatal(err)
	}

	if _, err := scheduler.Schedule(ctx, hypercron.Cron("0 3 * * *"), "nightly-backup", func() error {
		return runBackup("/var/backups")
	}); err != nil {
		log.Fatal(err)
	}

	stats, err := scheduler.GetJobStats(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("active=%d completed=%d totalRuns=%d\n", stats.ActiveCount, stats.CompletedCount, stats.TotalRuns)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func runBackup(dir string) error {
	fmt.Printf("backing up to %s\n", dir)
	return nil
}
