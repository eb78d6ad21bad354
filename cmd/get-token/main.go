package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"mail-chain-analyzer/internal/config"
	"mail-chain-analyzer/internal/mailbox"
)

// get-token walks through the OAuth2 consent flow once and prints the
// refresh token the analyzer needs for OAUTHBEARER logins.
func main() {
	_ = godotenv.Load()

	cfg := config.OAuth2Config{
		ClientID:     os.Getenv("IMAP_OAUTH2_CLIENT_ID"),
		ClientSecret: os.Getenv("IMAP_OAUTH2_CLIENT_SECRET"),
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		logrus.Fatal("Please set IMAP_OAUTH2_CLIENT_ID and IMAP_OAUTH2_CLIENT_SECRET")
	}

	oauth2Config := mailbox.OAuth2Config(cfg, "http://localhost:8080/callback")

	authURL := oauth2Config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

	var authCode string
	fmt.Print("\nEnter the authorization code: ")
	if _, err := fmt.Scan(&authCode); err != nil {
		logrus.Fatalf("Unable to read authorization code: %v", err)
	}

	tok, err := oauth2Config.Exchange(context.Background(), authCode)
	if err != nil {
		logrus.Fatalf("Unable to retrieve token from web: %v", err)
	}
	if tok.RefreshToken == "" {
		logrus.Fatal("No refresh token returned; revoke the app's access and try again")
	}

	fmt.Println("\nAdd the refresh token to your environment variables:")
	fmt.Printf("export IMAP_OAUTH2_REFRESH_TOKEN=\"%s\"\n", tok.RefreshToken)
}
