package importer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/idp"
	"hackhub/core/store"
)

func setupImportEnv(t *testing.T) (*Importer, store.TeamsStore, store.ProfilesStore, store.RolesStore, *sql.DB) {
	t.Helper()
	cfg := &config.AppConfig{DBPath: filepath.Join(t.TempDir(), "import.db")}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	teams := store.NewTeamsStore(db)
	profiles := store.NewProfilesStore(db)
	roles := store.NewRolesStore(db)
	provider := idp.NewEmbeddedProvider(db, "pepper", 0, nil)
	svc := accounts.NewService(provider, profiles, roles, nil)
	return New(teams, svc, nil), teams, profiles, roles, db
}

func TestRunCreatesAccountsAndSharesTeam(t *testing.T) {
	imp, teams, profiles, roles, _ := setupImportEnv(t)
	ctx := context.Background()

	rows := []Row{
		{Email: "a@example.com", Name: "Alice", TeamName: "Team Alpha", TeamCode: "ALPHA", Phone: "123"},
		{Email: "b@example.com", Name: "Bob", TeamName: "Team Alpha", TeamCode: "ALPHA"},
	}
	out := imp.Run(ctx, rows)
	if out.Created != 2 || out.Skipped != 0 || out.Errors != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(out.Credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(out.Credentials))
	}
	if out.Credentials[0].Email != "a@example.com" || out.Credentials[1].Email != "b@example.com" {
		t.Fatalf("credentials out of input order: %+v", out.Credentials)
	}

	all, err := teams.List(ctx)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("rows sharing a team_code must share one team, got %d", len(all))
	}

	alice, err := profiles.FindByEmail(ctx, "a@example.com")
	if err != nil || alice == nil {
		t.Fatalf("profile for alice: %v %v", alice, err)
	}
	if alice.TeamID == nil || *alice.TeamID != all[0].ID {
		t.Fatalf("profile not linked to team: %+v", alice)
	}
	if alice.Phone != "123" {
		t.Fatalf("optional field lost: %+v", alice)
	}
	role, err := roles.RoleFor(ctx, alice.ID)
	if err != nil || role != store.RoleParticipant {
		t.Fatalf("expected participant role, got %q (%v)", role, err)
	}
}

func TestRunSkipsDuplicatesOnRerun(t *testing.T) {
	imp, _, _, _, _ := setupImportEnv(t)
	ctx := context.Background()

	rows := []Row{
		{Email: "a@example.com", Name: "Alice", TeamName: "Team Alpha", TeamCode: "ALPHA"},
		{Email: "b@example.com", Name: "Bob", TeamName: "Team Beta", TeamCode: "BETA"},
	}
	if out := imp.Run(ctx, rows); out.Created != 2 {
		t.Fatalf("first run: %+v", out)
	}
	out := imp.Run(ctx, rows)
	if out.Created != 0 || out.Skipped != 2 || out.Errors != 0 {
		t.Fatalf("rerun must skip duplicates: %+v", out)
	}
	if out.HasExport() {
		t.Fatalf("no credentials created, export must be withheld")
	}
	if len(out.Credentials) != 0 {
		t.Fatalf("skipped rows must not surface credentials: %+v", out.Credentials)
	}
}

func TestRunIgnoresIncompleteRows(t *testing.T) {
	imp, teams, profiles, _, _ := setupImportEnv(t)
	ctx := context.Background()

	rows := []Row{
		{Email: "a@example.com", Name: "", TeamName: "Team Alpha", TeamCode: "ALPHA"},
		{Email: "", Name: "Bob", TeamName: "Team Beta", TeamCode: "BETA"},
		{Email: "c@example.com", Name: "Cara", TeamName: "Team Gamma", TeamCode: ""},
	}
	out := imp.Run(ctx, rows)
	if out.Created != 0 || out.Skipped != 0 || out.Errors != 0 {
		t.Fatalf("incomplete rows must not touch counters: %+v", out)
	}
	if all, _ := teams.List(ctx); len(all) != 0 {
		t.Fatalf("incomplete rows must leave no teams behind: %d", len(all))
	}
	if p, _ := profiles.FindByEmail(ctx, "a@example.com"); p != nil {
		t.Fatalf("incomplete row created a profile: %+v", p)
	}
}

func TestRunCountsRowErrorsWithoutAborting(t *testing.T) {
	imp, _, _, _, _ := setupImportEnv(t)
	ctx := context.Background()

	rows := []Row{
		{Email: "not-an-email", Name: "Broken", TeamName: "Team Alpha", TeamCode: "ALPHA"},
		{Email: "ok@example.com", Name: "Fine", TeamName: "Team Alpha", TeamCode: "ALPHA"},
	}
	out := imp.Run(ctx, rows)
	if out.Errors != 1 || out.Created != 1 || out.Skipped != 0 {
		t.Fatalf("row failure must count, not abort: %+v", out)
	}
	if out.Created+out.Skipped+out.Errors != 2 {
		t.Fatalf("counters must account for every complete row: %+v", out)
	}
}
