package main

import (
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chorusfm/chorus/internal/config"
	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/repository"
	"github.com/chorusfm/chorus/internal/service"
	"github.com/chorusfm/chorus/pkg/auth"
)

// Seeds a demo account and prints a fresh API key for it. Run once against an
// empty database; re-running is safe, the existing user is reused.
func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.APIKey{}, &model.PushToken{}); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}

	userRepo := repository.NewUserRepository(db)

	email := "demo@chorus.fm"
	user, err := userRepo.FindByEmail(email)
	if err != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("❌ Failed to hash password: %v", err)
		}
		user = &model.User{
			Name:     "Demo Listener",
			Email:    email,
			Password: string(hashed),
		}
		if err := userRepo.Create(user); err != nil {
			log.Fatalf("❌ Failed to create user: %v", err)
		}
		log.Printf("✅ Created user %s (password: demo1234)", email)
	} else {
		log.Printf("ℹ️  User %s already exists, reusing", email)
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	authService := service.NewAuthService(userRepo, jwtManager, nil, "")

	key, err := authService.GenerateAPIKey(user.ID, "seeder")
	if err != nil {
		log.Fatalf("❌ Failed to generate API key: %v", err)
	}

	log.Println("🔑 API key (shown once, store it now):")
	log.Printf("    %s", key)
}
