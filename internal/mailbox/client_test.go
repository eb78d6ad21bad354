package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2/google"

	"mail-chain-analyzer/internal/config"
)

func TestOAuth2Config(t *testing.T) {
	c := OAuth2Config(config.OAuth2Config{ClientID: "id", ClientSecret: "secret"}, "http://localhost:8080/callback")

	assert.Equal(t, "id", c.ClientID)
	assert.Equal(t, "secret", c.ClientSecret)
	assert.Equal(t, []string{MailScope}, c.Scopes)
	assert.Equal(t, google.Endpoint, c.Endpoint)
	assert.Equal(t, "http://localhost:8080/callback", c.RedirectURL)
}

func TestNewIMAPDialerTokenSource(t *testing.T) {
	password := NewIMAPDialer(config.IMAPConfig{User: "u", Password: "p"})
	assert.Nil(t, password.tokens)

	bearer := NewIMAPDialer(config.IMAPConfig{
		User:   "u",
		OAuth2: config.OAuth2Config{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
	})
	assert.NotNil(t, bearer.tokens)
}
