// Command main runs the database seeder for Parley.
package main

import (
	"flag"
	"log"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to spread memberships across")
	numRooms := flag.Int("rooms", 10, "Number of rooms to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d rooms across %d users, clean=%v\n", *numRooms, *numUsers, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	_, _, err = bootstrap.InitRuntime(cfg, bootstrap.Options{
		Migrate: true,
		RunSeed: true,
		Seed: seed.Options{
			NumUsers:    *numUsers,
			NumRooms:    *numRooms,
			ShouldClean: *shouldClean,
		},
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seeding complete")
}
