package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"roombook/internal/config"
	"roombook/internal/database"
	"roombook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type roomsFile struct {
	Rooms []*models.Room `yaml:"rooms"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		roomsPath = flag.String("rooms", "configs/rooms.yaml", "path to a YAML file with a rooms list")
		dbPath    = flag.String("db", "./data/bookings.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*roomsPath)
	if err != nil {
		return fmt.Errorf("read rooms: %w", err)
	}
	var file roomsFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse rooms: %w", err)
	}
	if len(file.Rooms) == 0 {
		return fmt.Errorf("no rooms in yaml")
	}
	if err = config.ValidateRooms(file.Rooms); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before, err := db.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	known := make(map[int64]bool, len(before))
	for _, r := range before {
		known[r.ID] = true
	}

	if err = db.SyncRooms(ctx, file.Rooms); err != nil {
		return fmt.Errorf("sync rooms: %w", err)
	}

	created, updated := 0, 0
	for _, r := range file.Rooms {
		if known[r.ID] {
			updated++
		} else {
			created++
		}
	}
	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
