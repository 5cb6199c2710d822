package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	loginPath    = "/api/auth/login/"
	refreshPath  = "/api/auth/token/refresh/"
	registerPath = "/api/auth/register/"
	profilePath  = "/api/auth/profile/"
)

// LoginResult is the successful response of the login endpoint.
type LoginResult struct {
	AccessToken  string      `json:"access"`
	RefreshToken string      `json:"refresh"`
	User         models.User `json:"user"`
}

// RegisterRequest carries the profile fields for account creation.
type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	StudentID  string `json:"student_id,omitempty"`
	Department string `json:"department,omitempty"`
}

// Login exchanges credentials for a token pair and the user profile.
// It does not persist anything; that is the session store's job.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	var result LoginResult
	if err := c.doJSON(ctx, c.plain, http.MethodPost, loginPath, body, &result); err != nil {
		return nil, err
	}

	log.Debug().Str("username", username).Int64("userID", result.User.ID).Msg("login succeeded")

	return &result, nil
}

// Register creates a new account. No session is established: the caller
// still has to log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, c.plain, http.MethodPost, registerPath, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches the profile for the current access token.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, c.authed, http.MethodGet, profilePath, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshAccessToken exchanges a refresh token for a new access token.
// Called only by the refresh coordinator, on the plain client.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh": refreshToken}

	var result struct {
		Access string `json:"access"`
	}
	if err := c.doJSON(ctx, c.plain, http.MethodPost, refreshPath, body, &result); err != nil {
		if IsAuthFailure(err) {
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return "", err
	}
	if result.Access == "" {
		return "", fmt.Errorf("refresh endpoint returned no access token")
	}
	return result.Access, nil
}
