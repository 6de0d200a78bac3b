package bootstrap

import (
	"context"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/internal/migration"
	"github.com/Gofven/flowback-backend-sub001/internal/migrations"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	graph, err := migrations.Graph()
	if err != nil {
		return err
	}
	ex, err := migration.NewExecutor(db, graph, log)
	if err != nil {
		return err
	}
	return ex.Migrate(ctx, migration.Target{})
}

// DevUser is the account seeded in development.
var DevUser = struct {
	Username string
	Email    string
	Password string
}{
	Username: "admin",
	Email:    "admin@flowback.local",
	Password: "admin123",
}

// SeedDevUser creates DevUser unless a user with its email exists.
func SeedDevUser(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&entity.User{}).
		Where("email = ?", DevUser.Email).
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Debug().Msg("dev user already exists, skipping seed")
		return nil
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(DevUser.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := entity.User{
		Username:     DevUser.Username,
		Email:        DevUser.Email,
		PasswordHash: string(hashedPasswordBytes),
		IsActive:     true,
	}

	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return err
	}

	log.Info().
		Str("email", DevUser.Email).
		Str("password", DevUser.Password).
		Msg("dev user seeded")

	return nil
}
