// Command export writes the booking schedule for a date range to an XLSX file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"roombook/internal/config"
	"roombook/internal/database"
	"roombook/internal/export"
	"roombook/internal/logging"
	"roombook/internal/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		fromFlag   = flag.String("from", "", "first day, YYYY-MM-DD (default: 30 days ago)")
		toFlag     = flag.String("to", "", "last day, YYYY-MM-DD (default: 60 days ahead)")
		stdout     = flag.Bool("stdout", false, "write the workbook to stdout instead of the exports directory")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	logger := logging.Component(baseLogger, "export")

	loc := cfg.Location()
	from, to, err := exportRange(*fromFlag, *toFlag, time.Now().In(loc), loc)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	roomList, err := db.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	bookings, err := db.ListBookings(ctx, models.BookingFilter{From: from, To: to})
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}

	exporter := export.New(loc)
	if *stdout {
		return exporter.Write(os.Stdout, from, to, roomList, bookings)
	}

	path, err := exporter.SaveToDir(cfg.Exports.Path, from, to, roomList, bookings)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("Export written")
	return nil
}

// exportRange resolves the flags to whole days, from midnight of the first to
// the last instant of the last.
func exportRange(fromRaw, toRaw string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	from := today.AddDate(0, 0, -models.DefaultExportRangeDaysBefore)
	to := today.AddDate(0, 0, models.DefaultExportRangeDaysAfter+1).Add(-time.Nanosecond)

	if fromRaw != "" {
		d, err := time.ParseInLocation(time.DateOnly, fromRaw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from %q: %w", fromRaw, err)
		}
		from = d
	}
	if toRaw != "" {
		d, err := time.ParseInLocation(time.DateOnly, toRaw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to %q: %w", toRaw, err)
		}
		to = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to must not be before -from")
	}
	return from, to, nil
}
