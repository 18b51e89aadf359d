// Package auth logs users in and registers them against the remote account
// API, and turns a successful login into a committed session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"uangku/internal/logging"
	"uangku/internal/metrics"
	"uangku/internal/models"
	"uangku/internal/session"
	"uangku/internal/upstream"
)

// AccountAPI is the part of the remote API the gateway needs.
type AccountAPI interface {
	Login(ctx context.Context, creds models.Credentials) (*upstream.LoginResponse, error)
	Register(ctx context.Context, creds models.Credentials) (*upstream.RegisterEnvelope, error)
}

// Gateway performs login and registration.
type Gateway struct {
	api      AccountAPI
	sessions *session.Store
	sources  []TokenSource
	validate *validator.Validate
}

// NewGateway creates a gateway trying sources in order; nil means
// DefaultTokenSources.
func NewGateway(api AccountAPI, sessions *session.Store, sources []TokenSource) *Gateway {
	if sources == nil {
		sources = DefaultTokenSources()
	}
	return &Gateway{
		api:      api,
		sessions: sessions,
		sources:  sources,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoginResult is a successful login.
type LoginResult struct {
	Session models.SessionData
	// Cookie is the Set-Cookie header value for the new session.
	Cookie string
}

// Login authenticates creds. On success the session is already committed and
// LoginResult.Cookie must be sent to the browser.
func (g *Gateway) Login(ctx context.Context, creds models.Credentials) (*LoginResult, error) {
	log := logging.Ctx(ctx)

	if err := g.validate.Struct(creds); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	resp, err := g.api.Login(ctx, creds)
	if err != nil {
		log.Error().Err(err).Str("username", creds.Username).Msg("login request failed")
		metrics.LoginAttempts.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	if resp.StatusCode >= 500 {
		log.Error().Int("status", resp.StatusCode).Str("username", creds.Username).Msg("login upstream error")
		metrics.LoginAttempts.WithLabelValues("transient").Inc()
		return nil, ErrTransient
	}
	if !resp.Succeeded() {
		log.Info().Int("status", resp.StatusCode).Str("detail", resp.Envelope.Message).
			Str("username", creds.Username).Msg("login rejected")
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	token, source := g.findToken(resp)
	if token == "" {
		log.Error().Str("username", creds.Username).Msg("login succeeded without a token in the response")
		metrics.LoginAttempts.WithLabelValues("token_missing").Inc()
		return nil, ErrTokenMissing
	}

	// The user ID keys the cached snapshot; without one users would share it.
	if resp.Envelope.Data.ID <= 0 {
		log.Error().Str("username", creds.Username).Msg("login succeeded without a user id in the response")
		metrics.LoginAttempts.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: login response has no user id", ErrTransient)
	}

	username := resp.Envelope.Data.Username
	if username == "" {
		username = creds.Username
	}

	s := g.sessions.New()
	for key, value := range map[string]any{
		session.KeyToken:    token,
		session.KeyUserID:   resp.Envelope.Data.ID,
		session.KeyUsername: username,
	} {
		if err := s.Set(key, value); err != nil {
			metrics.LoginAttempts.WithLabelValues("transient").Inc()
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}

	cookie, err := g.sessions.Commit(s)
	if err != nil {
		log.Error().Err(err).Msg("session commit failed")
		metrics.LoginAttempts.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	log.Info().Str("username", username).Int64("user_id", s.UserID()).Str("token_source", source).
		Msg("login succeeded")
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return &LoginResult{Session: s.Data(), Cookie: cookie}, nil
}

func (g *Gateway) findToken(resp *upstream.LoginResponse) (token, source string) {
	for _, src := range g.sources {
		if t, ok := src.Token(resp.Header); ok {
			return t, src.Name()
		}
	}
	return "", ""
}

// RegisterForm is the registration form input.
type RegisterForm struct {
	Username        string `validate:"required"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// Register creates an account. Field checks run before any network call.
func (g *Gateway) Register(ctx context.Context, form RegisterForm) error {
	if err := g.checkRegisterForm(form); err != nil {
		return err
	}

	log := logging.Ctx(ctx)
	env, err := g.api.Register(ctx, models.Credentials{Username: form.Username, Password: form.Password})
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == upstream.KindUpstream {
			log.Warn().Int("status", apiErr.Status).Str("detail", apiErr.Message).
				Str("username", form.Username).Msg("registration failed")
			return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		log.Error().Err(err).Str("username", form.Username).Msg("registration request failed")
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	if env.Status != "success" {
		log.Info().Str("detail", env.Message).Str("username", form.Username).Msg("registration rejected")
		return &RegistrationRejectedError{Message: env.Message}
	}

	log.Info().Str("username", form.Username).Msg("account registered")
	return nil
}

func (g *Gateway) checkRegisterForm(form RegisterForm) error {
	err := g.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrMissingFields
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return ErrMissingFields
		}
	}
	return ErrPasswordMismatch
}
