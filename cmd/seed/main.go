// Command seed recreates the schema from the bun models and inserts demo
// accounts, listings and slots. It prints an HS256 token per account when
// JWT_SECRET is set.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-coaching/internal/auth"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/models"
)

func main() {
	drop := flag.Bool("drop", false, "drop every table before creating it")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx := context.Background()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN())))
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	if *drop {
		log.Info("SEED", "Dropping tables...")
		if err := database.DropSchema(ctx, db); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}

	log.Info("SEED", "Creating tables...")
	if err := database.CreateSchema(ctx, db); err != nil {
		log.Fatal("SEED", err.Error())
	}

	log.Info("SEED", "Seeding sample data...")
	users, err := seedData(ctx, db)
	if err != nil {
		log.Fatal("SEED", err.Error())
	}

	if cfg.Auth.JWTSecret != "" {
		for _, u := range users {
			tok, err := auth.SignHS256([]byte(cfg.Auth.JWTSecret), u.ID, u.Email, u.Role, u.CoachStatus, 24*time.Hour)
			if err != nil {
				log.Fatal("AUTH", err.Error())
			}
			fmt.Fprintf(os.Stdout, "%-8s %-28s %s\n", u.Role, u.Email, tok)
		}
	}
	log.Info("SEED", "✅ Done.")
}

func seedData(ctx context.Context, db *bun.DB) ([]models.User, error) {
	now := time.Now().UTC()
	// The established coach is old enough to skip the new-account payout cap.
	users := []models.User{
		{Email: "admin@coaching.example.com", FullName: "Platform Admin", Role: models.RoleAdmin, CreatedAt: now},
		{Email: "mei@coaching.example.com", FullName: "Mei Tan", Role: models.RoleCoach, CoachStatus: models.CoachApproved,
			PaypalEmail: "mei@paypal.example.com", CreatedAt: now.AddDate(-1, 0, 0)},
		{Email: "raj@coaching.example.com", FullName: "Raj Kumar", Role: models.RoleCoach, CoachStatus: models.CoachPending,
			PaypalEmail: "raj@paypal.example.com", CreatedAt: now},
		{Email: "alice@example.com", FullName: "Alice Lim", Role: models.RoleStudent, CreatedAt: now},
	}
	if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	coach, student := users[1], users[3]

	listings := []models.Listing{
		{CoachID: coach.ID, Title: "Badminton footwork", Description: "Court movement drills.", Sport: "badminton",
			SkillLevel: "beginner", DurationMinutes: 60, Location: "Bishan Sports Hall", PriceCents: 8000,
			IsActive: true, CreatedAt: now, UpdatedAt: now},
		{CoachID: coach.ID, Title: "Smash clinic", Description: "Power and timing.", Sport: "badminton",
			SkillLevel: "intermediate", DurationMinutes: 90, Location: "Bishan Sports Hall", PriceCents: 12000,
			DiscountPercentage: 10, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := db.NewInsert().Model(&listings).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert listings: %w", err)
	}

	var slots []models.Slot
	for day := 1; day <= 3; day++ {
		for _, l := range listings {
			slots = append(slots, models.Slot{
				CoachID:         coach.ID,
				ListingID:       l.ID,
				SessionDate:     now.AddDate(0, 0, day).Format(models.SlotDateLayout),
				SessionTime:     "09:00",
				DurationMinutes: l.DurationMinutes,
				Location:        l.Location,
				IsAvailable:     true,
				CreatedAt:       now,
			})
		}
	}
	if _, err := db.NewInsert().Model(&slots).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert slots: %w", err)
	}

	w := &models.Wallet{UserID: student.ID, BalanceCents: 50000, Points: 500, UpdatedAt: now}
	if _, err := db.NewInsert().Model(w).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	tx := &models.WalletTransaction{UserID: student.ID, AmountCents: w.BalanceCents, Method: "seed",
		Type: models.TxTopUp, Status: models.TxCompleted, Reference: "seed-topup", CreatedAt: now}
	if _, err := db.NewInsert().Model(tx).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert wallet transaction: %w", err)
	}
	return users, nil
}
