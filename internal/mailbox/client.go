package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mail-chain-analyzer/internal/config"
)

// Client is the part of an IMAP connection the manager and sessions use.
// *client.Client satisfies it.
type Client interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Idle(stop <-chan struct{}, opts *client.IdleOptions) error
	Logout() error
	LoggedOut() <-chan struct{}
}

// Dialer opens and authenticates a connection. Unsolicited server updates
// must be delivered to updates for the lifetime of the connection.
type Dialer interface {
	Dial(ctx context.Context, updates chan<- client.Update) (Client, error)
}

const dialTimeout = 30 * time.Second

// IMAPDialer connects to a real IMAP server with go-imap
type IMAPDialer struct {
	cfg    config.IMAPConfig
	tokens oauth2.TokenSource
}

// NewIMAPDialer creates a dialer. When an OAuth2 refresh token is configured
// the connection authenticates with OAUTHBEARER instead of LOGIN.
func NewIMAPDialer(cfg config.IMAPConfig) *IMAPDialer {
	d := &IMAPDialer{cfg: cfg}
	if cfg.UseOAuth2() {
		d.tokens = OAuth2Config(cfg.OAuth2, "").TokenSource(context.Background(), &oauth2.Token{
			RefreshToken: cfg.OAuth2.RefreshToken,
		})
	}
	return d
}

// MailScope grants full IMAP access to a Google mailbox
const MailScope = "https://mail.google.com/"

// OAuth2Config returns the client configuration used both to refresh IMAP
// access tokens and to obtain a refresh token interactively.
func OAuth2Config(cfg config.OAuth2Config, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{MailScope},
		RedirectURL:  redirectURL,
	}
}

// Dial implements Dialer
func (d *IMAPDialer) Dial(ctx context.Context, updates chan<- client.Update) (Client, error) {
	netDialer := &net.Dialer{Timeout: dialTimeout}

	var (
		c   *client.Client
		err error
	)
	if d.cfg.Secure {
		c, err = client.DialWithDialerTLS(netDialer, d.cfg.Address(), &tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: d.cfg.InsecureSkipVerify,
		})
	} else {
		c, err = client.DialWithDialer(netDialer, d.cfg.Address())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	c.Updates = updates

	if err := d.authenticate(ctx, c); err != nil {
		_ = c.Logout()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"host": d.cfg.Host,
		"user": d.cfg.User,
	}).Info("Connected to IMAP server")
	return c, nil
}

func (d *IMAPDialer) authenticate(ctx context.Context, c *client.Client) error {
	if d.tokens == nil {
		if err := c.Login(d.cfg.User, d.cfg.Password); err != nil {
			return fmt.Errorf("failed to login: %w", err)
		}
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	token, err := d.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to get OAuth2 token: %w", err)
	}

	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: d.cfg.User,
		Token:    token.AccessToken,
	})
	if err := c.Authenticate(saslClient); err != nil {
		return fmt.Errorf("failed to authenticate with OAUTHBEARER: %w", err)
	}
	return nil
}
