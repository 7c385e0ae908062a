package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/botfarm/internal/app"
	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage farm users",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new unlocked user",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		login, _ := flags.GetString("login")
		password, _ := flags.GetString("password")
		projectID, _ := flags.GetString("project-id")
		env, _ := flags.GetString("env")
		dom, _ := flags.GetString("domain")
		rawID, _ := flags.GetString("id")

		input := service.CreateUserInput{
			Login:    login,
			Password: password,
			Env:      domain.Env(env),
			Domain:   domain.Domain(dom),
		}

		var err error
		if input.ProjectID, err = uuid.Parse(projectID); err != nil {
			return fmt.Errorf("invalid --project-id: %w", err)
		}
		if rawID != "" {
			if input.ID, err = uuid.Parse(rawID); err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
		}

		return withApp(cmd.Context(), func(ctx context.Context, _ *config.Config, a *app.App, _ zerolog.Logger) error {
			user, err := a.UserService.CreateUser(ctx, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, _ *config.Config, a *app.App, _ zerolog.Logger) error {
			users, err := a.UserService.ListUsers(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		})
	},
}

var userLockCmd = &cobra.Command{
	Use:   "lock <id>",
	Short: "Acquire the lock on a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}

		return withApp(cmd.Context(), func(ctx context.Context, _ *config.Config, a *app.App, _ zerolog.Logger) error {
			res, err := a.UserService.AcquireLock(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"locktime":       res.User.Locktime,
				"already_locked": res.AlreadyLocked,
			})
		})
	},
}

var userUnlockCmd = &cobra.Command{
	Use:   "unlock <id>",
	Short: "Release the lock on a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}

		return withApp(cmd.Context(), func(ctx context.Context, _ *config.Config, a *app.App, _ zerolog.Logger) error {
			res, err := a.UserService.ReleaseLock(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"locktime":         res.User.Locktime,
				"already_unlocked": res.AlreadyUnlocked,
			})
		})
	},
}

func init() {
	f := userCreateCmd.Flags()
	f.String("login", "", "account email address")
	f.String("password", "", "account password")
	f.String("project-id", "", "project UUID")
	f.String("env", string(domain.EnvProd), "environment: prod, preprod or stage")
	f.String("domain", string(domain.DomainRegular), "domain: canary or regular")
	f.String("id", "", "explicit user UUID (generated when empty)")
	_ = userCreateCmd.MarkFlagRequired("login")
	_ = userCreateCmd.MarkFlagRequired("password")
	_ = userCreateCmd.MarkFlagRequired("project-id")

	userCmd.AddCommand(userCreateCmd, userListCmd, userLockCmd, userUnlockCmd)
	rootCmd.AddCommand(userCmd)
}
