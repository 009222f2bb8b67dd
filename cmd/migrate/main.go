package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	"github.com/noah-isme/agency-backoffice-api/pkg/config"
	"github.com/noah-isme/agency-backoffice-api/pkg/database"
	"github.com/noah-isme/agency-backoffice-api/pkg/logger"
)

func main() {
	var (
		seedCompany  string
		seedEmail    string
		seedPassword string
		seedName     string
	)
	flag.StringVar(&seedCompany, "seed-company", "", "Create a tenant with this name after migrating")
	flag.StringVar(&seedEmail, "seed-email", "", "Email of the tenant's first SUPERADMIN")
	flag.StringVar(&seedPassword, "seed-password", "", "Password of the tenant's first SUPERADMIN")
	flag.StringVar(&seedName, "seed-name", "Administrator", "Full name of the tenant's first SUPERADMIN")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(ctx, db, logr); err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}

	if seedCompany == "" {
		return
	}
	if seedEmail == "" || len(seedPassword) < 8 {
		logr.Fatal("seeding requires -seed-email and a -seed-password of at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		logr.Fatal("hash seed password", zap.Error(err))
	}

	users := repository.NewUserRepository(db)
	company := &models.Company{Name: seedCompany, Active: true}
	if err := users.CreateCompany(ctx, company); err != nil {
		logr.Fatal("seed company", zap.Error(err))
	}
	admin := &models.User{
		CompanyID:    company.ID,
		Email:        strings.ToLower(strings.TrimSpace(seedEmail)),
		PasswordHash: string(hash),
		FullName:     seedName,
		Role:         models.RoleSuperAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		logr.Fatal("seed admin", zap.Error(err))
	}
	logr.Info("seeded tenant", zap.String("company_id", company.ID), zap.String("email", admin.Email))
}
