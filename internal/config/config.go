package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerURL string
	RelayURL  string
	Token     string
	UserID    int
	UserName  string
	AvatarURL string

	// Contacts and Groups are the conversations whose call channels the
	// client subscribes to at startup.
	Contacts []int
	Groups   []int
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	server := os.Getenv("VOX_SERVER")
	if server == "" {
		return nil, fmt.Errorf("VOX_SERVER environment variable is required")
	}

	token := os.Getenv("VOX_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("VOX_TOKEN environment variable is required")
	}

	userID, err := strconv.Atoi(os.Getenv("VOX_USER_ID"))
	if err != nil {
		return nil, fmt.Errorf("VOX_USER_ID environment variable must be a numeric user id")
	}

	name := os.Getenv("VOX_USER_NAME")
	if name == "" {
		return nil, fmt.Errorf("VOX_USER_NAME environment variable is required")
	}

	relay := os.Getenv("VOX_RELAY_URL")
	if relay == "" {
		relay, err = deriveRelayURL(server)
		if err != nil {
			return nil, err
		}
	}

	contacts, err := parseIDList(os.Getenv("VOX_CONTACTS"))
	if err != nil {
		return nil, fmt.Errorf("VOX_CONTACTS: %w", err)
	}
	groups, err := parseIDList(os.Getenv("VOX_GROUPS"))
	if err != nil {
		return nil, fmt.Errorf("VOX_GROUPS: %w", err)
	}

	return &Config{
		ServerURL: strings.TrimRight(server, "/"),
		RelayURL:  relay,
		Token:     token,
		UserID:    userID,
		UserName:  name,
		AvatarURL: os.Getenv("VOX_AVATAR_URL"),
		Contacts:  contacts,
		Groups:    groups,
	}, nil
}

// deriveRelayURL turns the chat server base URL into the websocket relay URL.
func deriveRelayURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse VOX_SERVER: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("VOX_SERVER must be http(s), got %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

func parseIDList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
