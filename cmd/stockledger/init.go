package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

func initCmd(g *globalFlags) *cobra.Command {
	var adminUser string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema and the admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("user") {
				cfg.Auth.AdminUser = adminUser
			}

			dsn := cfg.Database.DSN
			if db.DriverFor(dsn) == db.DriverSQLite {
				if _, err := os.Stat(dsn); err == nil {
					return fmt.Errorf("database file %s already exists", dsn)
				}
			}

			database, password, err := initDatabase(dsn, cfg.Auth.AdminUser)
			if err != nil {
				return err
			}
			database.Close()

			if password == "" {
				fmt.Println("Schema initialized; users already exist, no admin account created.")
				return nil
			}
			printInitResult(dsn, cfg.Auth.AdminUser, password)
			return nil
		},
	}
	cmd.Flags().StringVarP(&adminUser, "user", "u", "", "admin username (default from config: Admin)")
	return cmd
}

// initDatabase opens the database, ensures the schema and creates the admin
// user when there are no users yet. The password is empty when no account
// was created. A SQLite file created here is removed again on failure.
func initDatabase(dsn, adminUsername string) (*sqlx.DB, string, error) {
	_, statErr := os.Stat(dsn)
	fresh := db.DriverFor(dsn) == db.DriverSQLite && os.IsNotExist(statErr)

	database, err := db.Open(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	fail := func(err error) (*sqlx.DB, string, error) {
		database.Close()
		if fresh {
			os.Remove(dsn)
		}
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	ctx := context.Background()
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return fail(fmt.Errorf("listing users: %w", err))
	}
	if len(users) > 0 {
		return database, "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	if _, err := store.CreateUser(ctx, database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dsn, username, password string) {
	fmt.Printf("Database ready: %s\n", dsn)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
