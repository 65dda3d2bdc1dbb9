package appbootstrap

import (
	"database/sql"
	"errors"

	"hackhub/api"
	"hackhub/api/handlers"
	"hackhub/config"
	"hackhub/core/accounts"
	"hackhub/core/authz"
	"hackhub/core/idp"
	"hackhub/core/importer"
	"hackhub/core/maintenance"
	"hackhub/core/store"
	"hackhub/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	provider   idp.Provider
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	profiles := store.NewProfilesStore(db)
	teams := store.NewTeamsStore(db)
	roles := store.NewRolesStore(db)
	audits := store.NewAuditStore(db)

	var provider idp.Provider
	var issuer handlers.TokenIssuer
	var purger maintenance.TokenPurger
	if cfg.IsEmbeddedProvider() {
		embedded := idp.NewEmbeddedProvider(db, cfg.Pepper, cfg.Provider.TokenTTL, logger)
		provider = embedded
		issuer = embedded
		purger = embedded
	} else {
		if cfg.Provider.BaseURL == "" || cfg.Provider.ServiceKey == "" {
			return nil, errors.New("remote provider requires base_url and service_key")
		}
		provider = idp.NewRemoteProvider(cfg.Provider, logger)
	}

	guard, err := authz.NewGuard(provider, roles, logger)
	if err != nil {
		return nil, err
	}
	accountsSvc := accounts.NewService(provider, profiles, roles, logger)
	imp := importer.New(teams, accountsSvc, logger)
	scheduler := maintenance.NewScheduler(cfg.Maintenance, audits, purger, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Cfg:      cfg,
			Profiles: profiles,
			Teams:    teams,
			Roles:    roles,
			Audits:   audits,
			Guard:    guard,
			Accounts: accountsSvc,
			Importer: imp,
			Issuer:   issuer,
			Logger:   logger,
		},
		provider: provider,
		workers:  []api.BackgroundWorker{scheduler},
	}, nil
}
