// Package identity реализует клиент внешнего провайдера идентификации.
// Приложение не владеет форматом сессии: оно лишь запрашивает текущую
// сессию по токену и инициирует выход. Любая ошибка провайдера
// трактуется вызывающим кодом как отсутствие сессии.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/magabrotheeeer/citycom/internal/models"
)

// ErrNoSession возвращается, когда провайдер не признал токен сессии.
var ErrNoSession = errors.New("identity: no session")

// Client клиент HTTP API провайдера идентификации.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент провайдера идентификации.
func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// GetSession запрашивает у провайдера сессию по токену.
// Возвращает ErrNoSession, если провайдер токен не признал.
func (c *Client) GetSession(ctx context.Context, token string) (*models.AuthSession, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("identity: unexpected status: " + resp.Status)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &models.AuthSession{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: user.ExpiresAt,
	}, nil
}

// SignOut инициирует выход у провайдера. Локальное состояние к этому
// моменту уже очищено, поэтому ошибка провайдера только логируется выше.
func (c *Client) SignOut(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", token, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.New("identity: unexpected status: " + resp.Status)
	}
	return nil
}
