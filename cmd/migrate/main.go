// Command migrate applies or inspects the database schema.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"parley/internal/config"
	"parley/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate/main.go <up|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Println("schema applied")
	case "status":
		migrator := db.Migrator()
		for _, model := range database.RegisteredModels() {
			state := "missing"
			if migrator.HasTable(model) {
				state = "present"
			}
			log.Printf("%-30T %s", model, state)
		}
	default:
		return usage()
	}
	return nil
}
