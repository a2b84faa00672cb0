package launchpad

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultConsumerKey identifies this application to Launchpad.
const DefaultConsumerKey = "lp_release_migrator"

// Credentials are OAuth 1.0 access credentials for the Launchpad API. An
// empty access token means anonymous, read-only access.
type Credentials struct {
	ConsumerKey  string `toml:"consumer_key"`
	AccessToken  string `toml:"access_token"`
	AccessSecret string `toml:"access_secret"`
}

// LoadCredentials reads credentials from a TOML file:
//
//	consumer_key = "lp_release_migrator"
//	access_token = "..."
//	access_secret = "..."
func LoadCredentials(path string) (*Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return nil, fmt.Errorf("reading credentials %s: %w", path, err)
	}
	if creds.ConsumerKey == "" {
		creds.ConsumerKey = DefaultConsumerKey
	}
	if (creds.AccessToken == "") != (creds.AccessSecret == "") {
		return nil, fmt.Errorf("credentials %s: access_token and access_secret must be set together", path)
	}
	return &creds, nil
}

// Anonymous reports whether the credentials only allow reads.
func (c *Credentials) Anonymous() bool {
	return c == nil || c.AccessToken == ""
}

// authorize sets a PLAINTEXT-signed OAuth 1.0 Authorization header, the
// scheme Launchpad uses for desktop integrations.
func (c *Credentials) authorize(req *http.Request) error {
	if c == nil {
		return nil
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating oauth nonce: %w", err)
	}
	consumer := c.ConsumerKey
	if consumer == "" {
		consumer = DefaultConsumerKey
	}

	params := []string{
		`realm="https://api.launchpad.net/"`,
		`oauth_consumer_key="` + consumer + `"`,
		`oauth_token="` + c.AccessToken + `"`,
		`oauth_signature_method="PLAINTEXT"`,
		`oauth_signature="&` + c.AccessSecret + `"`,
		`oauth_timestamp="` + strconv.FormatInt(time.Now().Unix(), 10) + `"`,
		`oauth_nonce="` + hex.EncodeToString(nonce) + `"`,
		`oauth_version="1.0"`,
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(params, ", "))
	return nil
}
