package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/authz"
	"hackhub/core/idp"
	"hackhub/core/importer"
	"hackhub/core/store"
	"hackhub/core/utils"
)

const handlerTimeout = 30 * time.Second

// UsersHandler serves the admin user-management surface: listing with filters,
// privileged create/delete, role changes, and the bulk CSV import.
type UsersHandler struct {
	cfg      *config.AppConfig
	profiles store.ProfilesStore
	teams    store.TeamsStore
	roles    store.RolesStore
	audits   store.AuditStore
	accounts *accounts.Service
	importer *importer.Importer
	logger   *utils.Logger
}

func NewUsersHandler(cfg *config.AppConfig, profiles store.ProfilesStore, teams store.TeamsStore,
	roles store.RolesStore, audits store.AuditStore, accounts *accounts.Service,
	imp *importer.Importer, logger *utils.Logger) *UsersHandler {
	return &UsersHandler{
		cfg:      cfg,
		profiles: profiles,
		teams:    teams,
		roles:    roles,
		audits:   audits,
		accounts: accounts,
		importer: imp,
		logger:   logger,
	}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	filter := store.ProfileFilter{
		Query: r.URL.Query().Get("q"),
		Role:  r.URL.Query().Get("role"),
	}
	users, err := h.profiles.ListFiltered(ctx, filter)
	if err != nil {
		h.logger.Errorf("list users: %v", err)
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []store.ProfileWithTeam{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	Name                string `json:"name"`
	TeamID              string `json:"team_id"`
	Phone               string `json:"phone"`
	TShirtSize          string `json:"tshirt_size"`
	DietaryRestrictions string `json:"dietary_restrictions"`
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeamID != "" {
		team, err := h.teams.Get(ctx, req.TeamID)
		if err != nil {
			h.logger.Errorf("create user: look up team %s: %v", req.TeamID, err)
			writeError(w, http.StatusInternalServerError, "failed to create user")
			return
		}
		if team == nil {
			writeError(w, http.StatusBadRequest, "unknown team")
			return
		}
	}
	userID, err := h.accounts.Create(ctx, accounts.CreateParams{
		Email:               req.Email,
		Password:            req.Password,
		Name:                req.Name,
		TeamID:              req.TeamID,
		Phone:               req.Phone,
		TShirtSize:          req.TShirtSize,
		DietaryRestrictions: req.DietaryRestrictions,
	})
	if err != nil {
		switch {
		case idp.IsDuplicate(err):
			writeError(w, http.StatusConflict, "a user with this email already exists")
		default:
			h.logger.Errorf("create user %s: %v", req.Email, err)
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	h.audit(ctx, r, "user.create", fmt.Sprintf("created %s (%s)", req.Email, userID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userId": userID})
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	profile, err := h.profiles.Get(ctx, id)
	if err != nil {
		h.logger.Errorf("delete user %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if err := h.accounts.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, idp.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Errorf("delete user %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to delete user")
		}
		return
	}
	detail := id
	if profile != nil {
		detail = fmt.Sprintf("%s (%s)", profile.Email, id)
	}
	h.audit(ctx, r, "user.delete", "deleted "+detail)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateProfileRequest struct {
	Name                *string `json:"name"`
	TeamID              *string `json:"team_id"`
	Phone               *string `json:"phone"`
	TShirtSize          *string `json:"tshirt_size"`
	DietaryRestrictions *string `json:"dietary_restrictions"`
	IsInsideVenue       *bool   `json:"is_inside_venue"`
}

// UpdateProfile edits directory fields on an existing profile. Absent fields
// keep their stored values; an empty team_id detaches the user from their team.
func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile, err := h.profiles.Get(ctx, id)
	if err != nil {
		h.logger.Errorf("update user %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		profile.Name = strings.TrimSpace(*req.Name)
	}
	if req.TeamID != nil {
		if teamID := strings.TrimSpace(*req.TeamID); teamID == "" {
			profile.TeamID = nil
		} else {
			team, err := h.teams.Get(ctx, teamID)
			if err != nil {
				h.logger.Errorf("update user %s: look up team %s: %v", id, teamID, err)
				writeError(w, http.StatusInternalServerError, "failed to update user")
				return
			}
			if team == nil {
				writeError(w, http.StatusBadRequest, "unknown team")
				return
			}
			profile.TeamID = &team.ID
		}
	}
	if req.Phone != nil {
		profile.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.TShirtSize != nil {
		profile.TShirtSize = strings.TrimSpace(*req.TShirtSize)
	}
	if req.DietaryRestrictions != nil {
		profile.DietaryRestrictions = strings.TrimSpace(*req.DietaryRestrictions)
	}
	if req.IsInsideVenue != nil {
		profile.IsInsideVenue = *req.IsInsideVenue
	}
	if err := h.profiles.Update(ctx, profile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Errorf("update user %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	h.audit(ctx, r, "user.update", "updated "+profile.Email)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !store.ValidRole(strings.TrimSpace(req.Role)) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	profile, err := h.profiles.Get(ctx, id)
	if err != nil {
		h.logger.Errorf("update role for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.roles.SetRole(ctx, id, strings.TrimSpace(req.Role)); err != nil {
		h.logger.Errorf("update role for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	h.audit(ctx, r, "role.update", fmt.Sprintf("set %s to %s", profile.Email, req.Role))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Import accepts a multipart CSV upload, runs the sequential import, and
// either returns the outcome as JSON or streams the credential export when the
// caller asks for format=csv.
func (h *UsersHandler) Import(w http.ResponseWriter, r *http.Request) {
	// No per-request timeout here: large imports are sequential and the
	// routine is expected to outlive the default handler deadline.
	ctx := r.Context()

	file, err := h.uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	rows, err := importer.ParseRows(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse csv: "+err.Error())
		return
	}
	outcome := h.importer.Run(ctx, rows)
	h.audit(ctx, r, "users.import",
		fmt.Sprintf("created=%d skipped=%d errors=%d", outcome.Created, outcome.Skipped, outcome.Errors))

	if r.URL.Query().Get("format") == "csv" && outcome.HasExport() {
		filename := importer.ExportFilename(utils.NowUTC())
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := importer.WriteCredentials(w, outcome.Credentials); err != nil {
			h.logger.Errorf("write credential export: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *UsersHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	teams, err := h.teams.List(ctx)
	if err != nil {
		h.logger.Errorf("list teams: %v", err)
		http.Error(w, "failed to list teams", http.StatusInternalServerError)
		return
	}
	if teams == nil {
		teams = []store.Team{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (h *UsersHandler) uploadedFile(r *http.Request) (multipartFile, error) {
	limit := int64(10 << 20)
	if h.cfg != nil && h.cfg.Import.MaxUploadBytes > 0 {
		limit = h.cfg.Import.MaxUploadBytes
	}
	r.Body = http.MaxBytesReader(nil, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, errors.New("multipart form with a file field required")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file field required")
	}
	return file, nil
}

type multipartFile interface {
	Read(p []byte) (int, error)
	Close() error
}

func (h *UsersHandler) audit(ctx context.Context, r *http.Request, action, details string) {
	if h.audits == nil {
		return
	}
	actor := "system"
	if dec := authz.FromContext(r.Context()); dec != nil {
		actor = dec.Email
	}
	if err := h.audits.Log(ctx, actor, action, details); err != nil {
		h.logger.Errorf("audit %s: %v", action, err)
	}
}
