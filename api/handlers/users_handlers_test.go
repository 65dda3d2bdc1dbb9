package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/idp"
	"hackhub/core/importer"
	"hackhub/core/store"
)

type usersEnv struct {
	handler  *UsersHandler
	profiles store.ProfilesStore
	teams    store.TeamsStore
	roles    store.RolesStore
	audits   store.AuditStore
	provider *idp.EmbeddedProvider
	db       *sql.DB
}

func setupUsersEnv(t *testing.T) *usersEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBPath: filepath.Join(t.TempDir(), "users.db"),
		Pepper: "pepper",
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	profiles := store.NewProfilesStore(db)
	teams := store.NewTeamsStore(db)
	roles := store.NewRolesStore(db)
	audits := store.NewAuditStore(db)
	provider := idp.NewEmbeddedProvider(db, cfg.Pepper, 0, nil)
	svc := accounts.NewService(provider, profiles, roles, nil)
	imp := importer.New(teams, svc, nil)
	h := NewUsersHandler(cfg, profiles, teams, roles, audits, svc, imp, nil)
	return &usersEnv{handler: h, profiles: profiles, teams: teams, roles: roles, audits: audits, provider: provider, db: db}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestCreateUserReturnsSuccessAndID(t *testing.T) {
	env := setupUsersEnv(t)
	payload := `{"email":"new@example.com","password":"Secret123","name":"New User","phone":"555"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.handler.Create(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Fatalf("expected success=true: %v", body)
	}
	userID, _ := body["userId"].(string)
	if userID == "" {
		t.Fatalf("expected userId in response: %v", body)
	}
	profile, err := env.profiles.Get(context.Background(), userID)
	if err != nil || profile == nil {
		t.Fatalf("profile not stored: %v %v", profile, err)
	}
	if profile.Email != "new@example.com" || profile.Phone != "555" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	role, _ := env.roles.RoleFor(context.Background(), userID)
	if role != store.RoleParticipant {
		t.Fatalf("expected participant default role, got %q", role)
	}
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	env := setupUsersEnv(t)
	payload := `{"email":"dup@example.com","password":"Secret123","name":"First"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.handler.Create(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first create: %d %s", rr.Code, rr.Body.String())
	}
	req = httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(payload))
	rr = httptest.NewRecorder()
	env.handler.Create(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] == "" || body["error"] == nil {
		t.Fatalf("expected error message: %v", body)
	}
}

func TestCreateUserRejectsUnknownTeam(t *testing.T) {
	env := setupUsersEnv(t)
	payload := `{"email":"x@example.com","password":"Secret123","name":"X","team_id":"no-such-team"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.handler.Create(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDeleteUserRemovesAccountAndProfile(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	svc := accounts.NewService(env.provider, env.profiles, env.roles, nil)
	userID, err := svc.Create(ctx, accounts.CreateParams{Email: "gone@example.com", Password: "Secret123", Name: "Gone"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+userID, nil)
	rr := httptest.NewRecorder()
	env.handler.Delete(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if p, _ := env.profiles.Get(ctx, userID); p != nil {
		t.Fatalf("profile must be gone: %+v", p)
	}
	if _, err := env.provider.CreateAccount(ctx, idp.NewAccount{Email: "gone@example.com", Password: "Secret123"}); err != nil {
		t.Fatalf("email must be reusable after delete: %v", err)
	}
}

func TestDeleteUserKeepsProfileWhenProviderFails(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	// A profile whose provider account is already gone: provider delete fails
	// first, so the directory rows must survive.
	profile := &store.UserProfile{ID: "orphan-id", Name: "Orphan", Email: "orphan@example.com"}
	if err := env.profiles.Create(ctx, profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/orphan-id", nil)
	rr := httptest.NewRecorder()
	env.handler.Delete(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if p, _ := env.profiles.Get(ctx, "orphan-id"); p == nil {
		t.Fatalf("profile must survive a failed provider delete")
	}
}

func TestUpdateRoleValidatesAndPersists(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	svc := accounts.NewService(env.provider, env.profiles, env.roles, nil)
	userID, err := svc.Create(ctx, accounts.CreateParams{Email: "r@example.com", Password: "Secret123", Name: "R"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID+"/role", strings.NewReader(`{"role":"judge"}`))
	rr := httptest.NewRecorder()
	env.handler.UpdateRole(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if role, _ := env.roles.RoleFor(ctx, userID); role != store.RoleJudge {
		t.Fatalf("role not persisted, got %q", role)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID+"/role", strings.NewReader(`{"role":"wizard"}`))
	rr = httptest.NewRecorder()
	env.handler.UpdateRole(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown role must be rejected, got %d", rr.Code)
	}
}

func TestUpdateProfileEditsFields(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	svc := accounts.NewService(env.provider, env.profiles, env.roles, nil)
	userID, err := svc.Create(ctx, accounts.CreateParams{Email: "e@example.com", Password: "Secret123", Name: "Edit Me"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	team := &store.Team{TeamCode: "ALPHA", TeamName: "Team Alpha"}
	if err := env.teams.Create(ctx, team); err != nil {
		t.Fatalf("seed team: %v", err)
	}

	payload := `{"name":"Edited","team_id":"` + team.ID + `","phone":"777","is_inside_venue":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID, strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.handler.UpdateProfile(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	updated, err := env.profiles.Get(ctx, userID)
	if err != nil || updated == nil {
		t.Fatalf("reload profile: %v %v", updated, err)
	}
	if updated.Name != "Edited" || updated.Phone != "777" || !updated.IsInsideVenue {
		t.Fatalf("fields not applied: %+v", updated)
	}
	if updated.TeamID == nil || *updated.TeamID != team.ID {
		t.Fatalf("team not applied: %+v", updated)
	}
	if updated.Email != "e@example.com" {
		t.Fatalf("email must not change on profile edit: %+v", updated)
	}

	// Absent fields stay, empty team_id detaches.
	req = httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID, strings.NewReader(`{"team_id":""}`))
	rr = httptest.NewRecorder()
	env.handler.UpdateProfile(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	updated, _ = env.profiles.Get(ctx, userID)
	if updated.TeamID != nil {
		t.Fatalf("empty team_id must detach the team: %+v", updated)
	}
	if updated.Name != "Edited" || updated.Phone != "777" {
		t.Fatalf("absent fields must keep their values: %+v", updated)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	env := setupUsersEnv(t)
	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/no-such-user", strings.NewReader(`{"name":"X"}`))
	rr := httptest.NewRecorder()
	env.handler.UpdateProfile(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user must be 404, got %d", rr.Code)
	}

	ctx := context.Background()
	svc := accounts.NewService(env.provider, env.profiles, env.roles, nil)
	userID, err := svc.Create(ctx, accounts.CreateParams{Email: "v@example.com", Password: "Secret123", Name: "V"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	req = httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID, strings.NewReader(`{"name":"  "}`))
	rr = httptest.NewRecorder()
	env.handler.UpdateProfile(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank name must be 400, got %d", rr.Code)
	}
	req = httptest.NewRequest(http.MethodPut, "/api/admin/users/"+userID, strings.NewReader(`{"team_id":"no-such-team"}`))
	rr = httptest.NewRecorder()
	env.handler.UpdateProfile(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown team must be 400, got %d", rr.Code)
	}
}

func TestListUsersFilters(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	svc := accounts.NewService(env.provider, env.profiles, env.roles, nil)
	aliceID, err := svc.Create(ctx, accounts.CreateParams{Email: "alice@example.com", Password: "Secret123", Name: "Alice"})
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if _, err := svc.Create(ctx, accounts.CreateParams{Email: "bob@example.com", Password: "Secret123", Name: "Bob"}); err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	if err := env.roles.SetRole(ctx, aliceID, store.RoleJudge); err != nil {
		t.Fatalf("set role: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users?q=alice", nil)
	rr := httptest.NewRecorder()
	env.handler.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	users, _ := body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("query filter: expected 1 user, got %d", len(users))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users?role=judge", nil)
	rr = httptest.NewRecorder()
	env.handler.List(rr, req)
	body = decodeBody(t, rr)
	users, _ = body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("role filter: expected 1 user, got %d", len(users))
	}
}

func multipartCSV(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "participants.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestImportReturnsOutcomeJSON(t *testing.T) {
	env := setupUsersEnv(t)
	csv := "email,name,team_name,team_code\n" +
		"a@example.com,Alice,Team Alpha,ALPHA\n" +
		"b@example.com,Bob,Team Alpha,ALPHA\n" +
		",Missing,Team Beta,BETA\n"
	buf, contentType := multipartCSV(t, csv)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/import", buf)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.handler.Import(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out importer.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.Created != 2 || out.Skipped != 0 || out.Errors != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(out.Credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(out.Credentials))
	}
}

func TestImportCSVFormatStreamsExport(t *testing.T) {
	env := setupUsersEnv(t)
	csv := "email,name,team_name,team_code\nc@example.com,Cara,Team Gamma,GAMMA\n"
	buf, contentType := multipartCSV(t, csv)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/import?format=csv", buf)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.handler.Import(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %q", got)
	}
	disp := rr.Header().Get("Content-Disposition")
	if !strings.Contains(disp, "login-credentials-") || !strings.Contains(disp, ".csv") {
		t.Fatalf("unexpected disposition: %q", disp)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if lines[0] != "name,email,password,team_name" {
		t.Fatalf("unexpected export header: %q", lines[0])
	}
	if len(lines) != 2 || !strings.Contains(lines[1], "c@example.com") {
		t.Fatalf("unexpected export body: %q", lines)
	}
}

func TestImportRejectsNonMultipart(t *testing.T) {
	env := setupUsersEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/import", strings.NewReader("email,name\n"))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	env.handler.Import(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListTeams(t *testing.T) {
	env := setupUsersEnv(t)
	ctx := context.Background()
	if err := env.teams.Create(ctx, &store.Team{TeamCode: "ALPHA", TeamName: "Team Alpha"}); err != nil {
		t.Fatalf("seed team: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/teams", nil)
	rr := httptest.NewRecorder()
	env.handler.ListTeams(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	teams, _ := body["teams"].([]any)
	if len(teams) != 1 {
		t.Fatalf("expected 1 team, got %d", len(teams))
	}
}
