package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/talkscene/talkscene/internal/user"
)

// userinfoURL is Google's OpenID userinfo endpoint.
const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleProfile is the subset of the userinfo response we consume.
type googleProfile struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Google runs the Google OAuth sign-in flow and maps Google identities to
// local accounts, creating them on first sign-in.
type Google struct {
	cfg   *oauth2.Config
	users user.Store
	log   *slog.Logger
}

// NewGoogle creates the Google sign-in flow.
func NewGoogle(clientID, clientSecret, redirectURL string, users user.Store, log *slog.Logger) *Google {
	if log == nil {
		log = slog.Default()
	}
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		users: users,
		log:   log,
	}
}

// AuthURL returns the Google consent page URL for the given CSRF state.
func (g *Google) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// HandleCallback exchanges the authorization code, fetches the Google
// profile, and returns the matching local account, creating or linking it
// as needed.
func (g *Google) HandleCallback(ctx context.Context, code string) (*user.User, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchange oauth code: %w", err)
	}

	profile, err := g.fetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, fmt.Errorf("auth: google profile missing id or email")
	}

	// Existing Google-linked account.
	u, err := g.users.GetByGoogleID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("auth: look up google id: %w", err)
	}
	if u != nil {
		return u, nil
	}

	// Password account with the same email: link the Google identity.
	u, err = g.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("auth: look up email: %w", err)
	}
	if u != nil {
		u.GoogleID = profile.ID
		if err := g.users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("auth: link google identity: %w", err)
		}
		g.log.Info("linked google identity to existing account", "user_id", u.ID)
		return u, nil
	}

	// First sign-in: create the account.
	u = &user.User{
		ID:        uuid.NewString(),
		Email:     profile.Email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		GoogleID:  profile.ID,
		Role:      user.RoleUser,
		Tier:      user.TierFree,
	}
	if err := g.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("auth: create user from google profile: %w", err)
	}
	g.log.Info("user registered via google", "user_id", u.ID)
	return u, nil
}

func (g *Google) fetchProfile(ctx context.Context, tok *oauth2.Token) (*googleProfile, error) {
	resp, err := g.cfg.Client(ctx, tok).Get(userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch google profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth: google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("auth: decode google profile: %w", err)
	}
	return &profile, nil
}
