// Package importer implements the participant bulk-import routine: a
// sequential fold over CSV rows that resolves teams, provisions accounts
// through the privileged account service, and accumulates an outcome record.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hackhub/core/accounts"
	"hackhub/core/idp"
	"hackhub/core/store"
	"hackhub/core/utils"
)

// Row is one candidate from the tabular input. The first four fields are
// required; a row missing any of them is skipped before any side effect.
type Row struct {
	Email               string
	Name                string
	TeamName            string
	TeamCode            string
	Phone               string
	TShirtSize          string
	DietaryRestrictions string
}

func (r Row) complete() bool {
	return r.Email != "" && r.Name != "" && r.TeamName != "" && r.TeamCode != ""
}

// Credential is one line of the downloadable export: the only place the
// plaintext temporary password is ever surfaced.
type Credential struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	TeamName string `json:"team_name"`
}

// Outcome summarizes one run. Credentials holds exactly one entry per row
// counted in Created, in input order.
type Outcome struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	// Credentials is the credential-export payload. It is surfaced exactly
	// once, in the response to the run that created the accounts, whether the
	// caller takes it as JSON or as the CSV download; it is never persisted.
	Credentials []Credential `json:"credentials,omitempty"`
}

// HasExport reports whether a credential export should be produced.
func (o Outcome) HasExport() bool {
	return o.Created > 0
}

// ExportFilename names the credential export after the run's calendar date.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("login-credentials-%s.csv", t.UTC().Format("2006-01-02"))
}

type Importer struct {
	teams    store.TeamsStore
	accounts *accounts.Service
	logger   *utils.Logger
}

func New(teams store.TeamsStore, accounts *accounts.Service, logger *utils.Logger) *Importer {
	return &Importer{teams: teams, accounts: accounts, logger: logger}
}

// Run processes rows strictly sequentially in input order. Rows are
// deliberately not parallelized: team lookup-then-create is not transactional,
// and concurrent rows sharing a new team_code would race into duplicates.
// Row failures never abort the run; they become counters.
func (im *Importer) Run(ctx context.Context, rows []Row) Outcome {
	var out Outcome
	for _, row := range rows {
		if !row.complete() {
			continue
		}
		team, err := im.resolveTeam(ctx, row)
		if err != nil {
			out.Errors++
			if im.logger != nil {
				im.logger.Errorf("import: team %q for %s: %v", row.TeamCode, row.Email, err)
			}
			continue
		}
		password := tempPassword()
		_, err = im.accounts.Create(ctx, accounts.CreateParams{
			Email:               row.Email,
			Password:            password,
			Name:                row.Name,
			TeamID:              team.ID,
			Phone:               row.Phone,
			TShirtSize:          row.TShirtSize,
			DietaryRestrictions: row.DietaryRestrictions,
		})
		switch {
		case err == nil:
			out.Credentials = append(out.Credentials, Credential{
				Name:     row.Name,
				Email:    row.Email,
				Password: password,
				TeamName: row.TeamName,
			})
			out.Created++
		case idp.IsDuplicate(err):
			out.Skipped++
		default:
			out.Errors++
			if im.logger != nil {
				im.logger.Errorf("import: create participant %s: %v", row.Email, err)
			}
		}
	}
	return out
}

func (im *Importer) resolveTeam(ctx context.Context, row Row) (*store.Team, error) {
	team, err := im.teams.FindByCode(ctx, row.TeamCode)
	if err != nil {
		return nil, err
	}
	if team != nil {
		return team, nil
	}
	team = &store.Team{TeamCode: row.TeamCode, TeamName: row.TeamName}
	if err := im.teams.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// tempPassword follows the provider's complexity policy: fixed prefix, eight
// random alphanumerics, trailing symbol. The suffix is re-rolled until it
// carries a digit so the provider's letter+digit rule always holds.
func tempPassword() string {
	for i := 0; i < 16; i++ {
		suffix, err := utils.RandString(8)
		if err != nil {
			break
		}
		if strings.ContainsAny(suffix, "0123456789") {
			return "Hack" + suffix + "!"
		}
	}
	// crypto/rand failing means the process is in trouble anyway;
	// fall back to a time-derived suffix rather than abort the row.
	return fmt.Sprintf("Hack%08d!", time.Now().UnixNano()%1e8)
}
