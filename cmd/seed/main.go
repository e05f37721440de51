// Command seed populates a pulsifi database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"pulsifi/internal/bootstrap"
	"pulsifi/internal/config"
	"pulsifi/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()

	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numModerators := flag.Int("moderators", defaults.NumModerators, "Number of moderators to create")
	numPulses := flag.Int("pulses", defaults.NumPulses, "Number of pulses to create")
	replies := flag.Int("replies", defaults.RepliesPerPulse, "Maximum replies under each pulse")
	follows := flag.Int("follows", defaults.FollowsPerUser, "Users each user follows")
	reactions := flag.Int("reactions", defaults.ReactionsPerPulse, "Likes or dislikes on each pulse")
	reports := flag.Int("reports", defaults.NumReports, "Number of reports to file")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randomSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	fixturesPath := flag.String("fixtures", "", `YAML fixture file, or "demo" for the built-in set`)
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d moderators, %d pulses, clean=%v\n", *numUsers, *numModerators, *numPulses, *shouldClean)

	opts := seed.Options{
		NumUsers:          *numUsers,
		NumModerators:     *numModerators,
		NumPulses:         *numPulses,
		RepliesPerPulse:   *replies,
		FollowsPerUser:    *follows,
		ReactionsPerPulse: *reactions,
		NumReports:        *reports,
		ShouldClean:       *shouldClean,
		RandomSeed:        *randomSeed,
	}
	if *fixturesPath != "" {
		fixtures, err := seed.LoadFixtures(*fixturesPath)
		if err != nil {
			log.Fatalf("❌ Failed to load fixtures: %v", err)
		}
		opts.Fixtures = fixtures
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	res, err := seed.Seed(ctx, rt.DB, rt.Services, opts)
	if shutdownErr := rt.Shutdown(ctx); shutdownErr != nil {
		log.Printf("⚠️  Shutdown: %v", shutdownErr)
	}
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d pulses, %d replies and %d reports created.", res.Users+res.Moderators, res.Pulses, res.Replies, res.Reports)
}
