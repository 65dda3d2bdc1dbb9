package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hackhub/config"
	"hackhub/core/utils"
)

// RemoteProvider talks to a hosted identity provider's admin API. The service
// key is the elevated credential; it must never reach a browser.
type RemoteProvider struct {
	baseURL    string
	serviceKey string
	client     *http.Client
	logger     *utils.Logger
}

func NewRemoteProvider(cfg config.ProviderConfig, logger *utils.Logger) *RemoteProvider {
	return &RemoteProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		client:     &http.Client{Timeout: cfg.EffectiveRequestTimeout()},
		logger:     logger,
	}
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type remoteError struct {
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	ErrorDesc string `json:"error_description"`
}

func (e *remoteError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDesc, e.ErrorCode} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return "provider error"
}

func (p *RemoteProvider) ResolveToken(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", p.serviceKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnknownToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolve token: unexpected status %d", resp.StatusCode)
	}
	var u remoteUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("resolve token: decode: %w", err)
	}
	if u.ID == "" {
		return nil, ErrUnknownToken
	}
	return &Identity{ID: u.ID, Email: u.Email}, nil
}

func (p *RemoteProvider) CreateAccount(ctx context.Context, acc NewAccount) (string, error) {
	payload := map[string]any{
		"email":         acc.Email,
		"password":      acc.Password,
		"email_confirm": true,
		"user_metadata": map[string]string{"name": acc.Name},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/admin/users", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.setAdminHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var u remoteUser
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			return "", fmt.Errorf("create account: decode: %w", err)
		}
		if u.ID == "" {
			return "", fmt.Errorf("create account: provider returned no id")
		}
		return u.ID, nil
	}
	var perr remoteError
	_ = json.NewDecoder(resp.Body).Decode(&perr)
	if perr.ErrorCode == "email_exists" || strings.Contains(perr.text(), duplicateMessageShim) {
		return "", fmt.Errorf("%s: %w", acc.Email, ErrDuplicateAccount)
	}
	if p.logger != nil {
		p.logger.Errorf("provider create account status=%d: %s", resp.StatusCode, perr.text())
	}
	return "", fmt.Errorf("create account: %s", perr.text())
}

func (p *RemoteProvider) DeleteAccount(ctx context.Context, accountID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		p.baseURL+"/auth/v1/admin/users/"+url.PathEscape(accountID), nil)
	if err != nil {
		return err
	}
	p.setAdminHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return ErrAccountNotFound
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var perr remoteError
	_ = json.NewDecoder(resp.Body).Decode(&perr)
	return fmt.Errorf("delete account: %s", perr.text())
}

func (p *RemoteProvider) setAdminHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.serviceKey)
	req.Header.Set("apikey", p.serviceKey)
	req.Header.Set("Content-Type", "application/json")
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
