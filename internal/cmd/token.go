package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"jwt-cookie-ws/internal/auth"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenType    string
	tokenFresh   bool
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed token for manual testing",
	Long: `Mint an access or refresh token signed with JWT_SECRET (and JWT_ISSUER, if
set) and print it together with its csrf value as JSON.

Examples:
  # Fresh access token for alice
  jwt-cookie-ws token --subject alice --fresh

  # Refresh token valid for one hour
  jwt-cookie-ws token --subject alice --type refresh --ttl 1h
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "test", "token subject")
	tokenCmd.Flags().StringVar(&tokenType, "type", string(auth.TypeAccess), "token type: access or refresh")
	tokenCmd.Flags().BoolVar(&tokenFresh, "fresh", false, "mark an access token as fresh")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "override the default expiry")
}

type mintedToken struct {
	Token     string    `json:"token"`
	CSRF      string    `json:"csrf,omitempty"`
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	s := auth.DefaultSettings(secret)
	s.Issuer = os.Getenv("JWT_ISSUER")
	if tokenTTL > 0 {
		s.AccessTTL = tokenTTL
		s.RefreshTTL = tokenTTL
	}
	issuer, err := auth.NewIssuer(s)
	if err != nil {
		return err
	}

	var tok auth.Token
	switch auth.TokenType(tokenType) {
	case auth.TypeAccess:
		tok, err = issuer.CreateAccessToken(tokenSubject, tokenFresh)
	case auth.TypeRefresh:
		tok, err = issuer.CreateRefreshToken(tokenSubject)
	default:
		return errors.New("--type must be access or refresh")
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(mintedToken{
		Token:     tok.Raw,
		CSRF:      tok.CSRF,
		JTI:       tok.Claims.ID,
		ExpiresAt: tok.Claims.ExpiresAt.Time,
	})
}
