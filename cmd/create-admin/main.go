package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctoring/internal/config"
	"github.com/stemsi/exstem-proctoring/internal/database"
	"github.com/stemsi/exstem-proctoring/internal/logger"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/repository"
	"github.com/stemsi/exstem-proctoring/internal/service"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	var (
		roleName string
		examIDs  string
	)
	flag.StringVar(&roleName, "role", model.RoleSupervisor, "Role name to grant")
	flag.StringVar(&examIDs, "exams", "", "Comma-separated exam IDs to supervise")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, logger.FileOptions{})

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Services ───────────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	adminService := service.NewAdminService(adminRepo, roleRepo)
	supervisorService := service.NewSupervisorService(examRepo, adminRepo)

	roleID, err := adminService.ResolveRoleID(ctx, roleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fmt.Printf("Error: role %q does not exist\n", roleName)
			return
		}
		log.Fatal().Err(err).Msg("Failed to resolve role")
	}

	exams, err := parseExamIDs(examIDs)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New %s ===\n", roleName)

	name := prompt(reader, "Enter Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	email := prompt(reader, "Enter Email: ")
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	newAdmin := &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		RoleID:       roleID,
	}
	if err := adminService.Create(ctx, newAdmin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}
	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", roleName, newAdmin.Name, newAdmin.Email, newAdmin.ID)

	for _, examID := range exams {
		if _, err := supervisorService.Assign(ctx, examID, newAdmin.ID); err != nil {
			fmt.Printf("Warning: could not assign exam %s: %v\n", examID, err)
			continue
		}
		fmt.Printf("Assigned as supervisor of exam %s\n", examID)
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func parseExamIDs(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid exam id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
