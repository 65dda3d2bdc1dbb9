// Package appbootstrap wires configuration, database, identity provider, and
// HTTP server into a running process.
package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackhub/api"
	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/idp"
	"hackhub/core/store"
	"hackhub/core/utils"
)

// Run starts the application and blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLogger()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		cancel()
		return fmt.Errorf("apply migrations: %w", err)
	}
	cancel()

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}

	if cfg.IsEmbeddedProvider() {
		if err := seedAdmin(cfg, comp, logger); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	for _, w := range comp.workers {
		w.Start()
	}
	defer func() {
		for _, w := range comp.workers {
			w.Stop()
		}
	}()

	server := api.NewServer(comp.serverDeps)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// seedAdmin guarantees at least one super_admin exists on embedded
// deployments. It only acts when the configured admin email has no account and
// no super_admin is assigned yet.
func seedAdmin(cfg *config.AppConfig, comp *runtimeComposition, logger *utils.Logger) error {
	boot := cfg.Bootstrap
	if boot.AdminEmail == "" || boot.AdminPassword == "" {
		logger.Printf("bootstrap: no admin password configured, skipping seed")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := comp.serverDeps.Roles.CountByRole(ctx, store.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	svc := accounts.NewService(comp.provider, comp.serverDeps.Profiles, comp.serverDeps.Roles, logger)
	userID, err := svc.Create(ctx, accounts.CreateParams{
		Email:    boot.AdminEmail,
		Password: boot.AdminPassword,
		Name:     boot.AdminName,
	})
	if err != nil {
		if idp.IsDuplicate(err) {
			return errors.New("admin account exists but holds no super_admin role; fix the role assignment manually")
		}
		return err
	}
	if err := comp.serverDeps.Roles.SetRole(ctx, userID, store.RoleSuperAdmin); err != nil {
		return err
	}
	if err := comp.serverDeps.Audits.Log(ctx, "system", "bootstrap.admin", "seeded "+boot.AdminEmail); err != nil {
		logger.Errorf("bootstrap: audit: %v", err)
	}
	logger.Printf("bootstrap: seeded super_admin %s", boot.AdminEmail)
	return nil
}
