package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/config"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/database"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var username, password string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(func(db *gorm.DB, logger *zap.Logger) error {
				accounts, err := newAccountService(db)
				if err != nil {
					return err
				}
				userID, err := accounts.Register(cmd.Context(), username, password)
				if err != nil {
					return err
				}
				logger.Info("account registered", zap.String("user_id", userID))
				fmt.Fprintln(cmd.OutOrStdout(), userID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&username, "username", "", "Account username")
	addCmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(func(*gorm.DB, *zap.Logger) error {
				return nil
			})
		},
	}
}

func withStorage(run func(*gorm.DB, *zap.Logger) error) error {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := newLogger(appConfig)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return run(db, logger)
}
