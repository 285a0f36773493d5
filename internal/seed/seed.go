// Package seed fills an empty database with a small demo data set.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/repository"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// Run seeds two resource types, two users (one admin), two resources and
// one booking for each user.  It does nothing when any user exists.
// Everything is written in one transaction.
func Run(ctx context.Context, db *sql.DB, bcryptCost int, now time.Time) error {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return fmt.Errorf("seed: count users: %w", err)
	}
	if n > 0 {
		log.Debug("seed: users exist, skipping")
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	typeRepo := repository.NewResourceTypeRepo(db)
	resRepo := repository.NewResourceRepo(db)
	userRepo := repository.NewUserRepo(db)

	car := model.ResourceType{TypeName: "Car"}
	room := model.ResourceType{TypeName: "Meeting Room"}
	for _, t := range []*model.ResourceType{&car, &room} {
		if err := typeRepo.CreateTx(ctx, tx, t); err != nil {
			return fmt.Errorf("seed: resource type %q: %w", t.TypeName, err)
		}
	}

	john := model.User{Email: "john.doe@example.com", Name: "John", LastName: "Doe", Role: model.RoleAdmin}
	jane := model.User{Email: "jane.doe@example.com", Name: "Jane", LastName: "Doe", Role: model.RoleUser}
	for _, u := range []*model.User{&john, &jane} {
		if err := userRepo.CreateTx(ctx, tx, u, DemoPassword, bcryptCost); err != nil {
			return fmt.Errorf("seed: user %s: %w", u.Email, err)
		}
	}

	corolla := model.Resource{Name: "Toyota Corolla", ResourceTypeID: car.ID}
	conf := model.Resource{Name: "Conference Room 101", ResourceTypeID: room.ID}
	for _, r := range []*model.Resource{&corolla, &conf} {
		if err := resRepo.CreateTx(ctx, tx, r); err != nil {
			return fmt.Errorf("seed: resource %q: %w", r.Name, err)
		}
	}

	now = now.UTC().Truncate(time.Second)
	day := 24 * time.Hour
	bookings := []model.Booking{
		{ResourceID: corolla.ID, UserID: john.ID, StartsAt: now, EndsAt: now.Add(day)},
		{ResourceID: conf.ID, UserID: jane.ID, StartsAt: now.Add(day), EndsAt: now.Add(2 * day)},
	}
	for _, b := range bookings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO bookings (resource_id, user_id, starts_at, ends_at) VALUES (?, ?, ?, ?)",
			b.ResourceID, b.UserID, b.StartsAt, b.EndsAt); err != nil {
			return fmt.Errorf("seed: booking: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"users": 2, "resources": 2, "bookings": len(bookings)}).Info("seed: demo data inserted")
	return nil
}
