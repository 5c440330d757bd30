package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/booking"
	"github.com/tanjh/roombook/pkg/cache"
	"github.com/tanjh/roombook/pkg/client"
	"github.com/tanjh/roombook/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			log.Fatalf("ROOMBOOK_AUTH_USERNAME and ROOMBOOK_AUTH_PASSWORD must be set")
		}
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		logger.Fatal("failed to open cache", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close cache", zap.Error(err))
		}
	}()

	c, err := client.New(cfg.Site.BaseURL, cfg.Site.Timeout, logger)
	if err != nil {
		logger.Fatal("invalid site configuration", zap.Error(err))
	}

	ctx := context.Background()
	manager := client.NewManager(c, store, client.Credentials{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}, logger)

	reused, err := manager.EnsureSession(ctx)
	if err != nil {
		logger.Fatal("could not establish a session", zap.Error(err))
	}
	token, err := manager.EnsureToken(ctx, reused)
	if err != nil {
		logger.Fatal("could not retrieve verification token", zap.Error(err))
	}

	stdin := bufio.NewScanner(os.Stdin)
	if !menu(stdin) {
		fmt.Println("\nExiting... Goodbye!")
		return
	}

	window := booking.Window{
		Date:      cfg.Search.Date,
		StartTime: cfg.Search.StartTime,
		EndTime:   cfg.Search.EndTime,
	}
	if window.Date == "" {
		window.Date = time.Now().AddDate(0, 0, 1).Format("02 Jan 2006")
	}

	directory := booking.NewDirectory(c, store, cfg.Search.ResourceType, logger)
	resources, err := directory.ListResources(ctx, token)
	if err != nil {
		logger.Fatal("room search failed", zap.Error(err))
	}
	if len(resources) == 0 {
		fmt.Println("No rooms matched the search.")
		return
	}

	resolver := booking.NewResolver(c, logger)
	index, err := resolver.ResolveBulk(ctx, token, resources, window)
	if err != nil {
		// Availability failures degrade to an empty result rather than a crash.
		logger.Warn("availability query failed", zap.Error(err))
		index = booking.NewSlotIndex()
	}
	if index.Len() == 0 {
		fmt.Println("\nNo available slots for this date.")
		return
	}
	printIndex(index)

	room := prompt(stdin, "\nEnter room name (E2-XX-XXX-DRXXX): ")
	room = strings.ToUpper(room)
	selection := prompt(stdin, "Enter slot numbers to book (comma-separated, e.g., 0,1,2) or a range (e.g., 0-2): ")
	positions, err := booking.ParseSelection(selection)
	if err != nil {
		fmt.Printf("Invalid input: %v\n", err)
		os.Exit(1)
	}

	coordinator := booking.NewCoordinator(c, window.Date, cfg.Booking.Attendees, cfg.Booking.Purpose, logger)
	outcome, err := coordinator.Book(ctx, index, room, positions, token)
	switch outcome {
	case booking.OutcomeCommitted:
		fmt.Println("Booking finalized successfully.")
	case booking.OutcomeFinalizeFailed:
		// Dangling commit: the confirm phase succeeded, so the server may
		// still hold the reservation even though finalization failed.
		fmt.Printf("WARNING: booking was confirmed but not finalized: %v\n", err)
		fmt.Println("The server may still hold this reservation. Verify it manually before retrying.")
		os.Exit(1)
	default:
		fmt.Printf("Booking failed: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// menu shows the main menu and reports whether the user chose to book.
func menu(stdin *bufio.Scanner) bool {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SIT Room Booking System")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("\nOptions:")
	fmt.Println("1. Search and book a room")
	fmt.Println("2. Exit")
	fmt.Println(strings.Repeat("=", 60))
	choice := prompt(stdin, "\nEnter your choice (1-2): ")
	return choice == "1"
}

func printIndex(index *booking.SlotIndex) {
	for _, room := range index.Rooms() {
		fmt.Printf("\nAvailable slots for room %s:\n", room)
		for i, slot := range index.Slots(room) {
			fmt.Printf("  [%d] %s\n", i, slot.TimeRange)
		}
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		fmt.Println("\nExiting... Goodbye!")
		os.Exit(0)
	}
	return strings.TrimSpace(stdin.Text())
}
