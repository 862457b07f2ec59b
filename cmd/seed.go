package cmd

import (
	"fmt"

	"github.com/vericall/vericall/internal/config"
	"github.com/vericall/vericall/internal/database"
	"github.com/vericall/vericall/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	seedEmail    string
	seedPassword string
	seedName     string
)

var seedAgentCmd = &cobra.Command{
	Use:   "seed-agent",
	Short: "Create an agent login in the database",
	RunE:  runSeedAgent,
}

func init() {
	seedAgentCmd.Flags().StringVar(&seedEmail, "email", "", "agent email (required)")
	seedAgentCmd.Flags().StringVar(&seedPassword, "password", "", "agent password (required)")
	seedAgentCmd.Flags().StringVar(&seedName, "name", "", "display name")
	_ = seedAgentCmd.MarkFlagRequired("email")
	_ = seedAgentCmd.MarkFlagRequired("password")
}

func runSeedAgent(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	db, err := database.Open(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	agent := models.Agent{
		Email:        seedEmail,
		PasswordHash: string(hash),
		DisplayName:  seedName,
	}
	if err := db.Create(&agent).Error; err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	fmt.Printf("agent created: %s (%s)\n", agent.Email, agent.ID)
	return nil
}
