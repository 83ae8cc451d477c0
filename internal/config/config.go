package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
// One struct serves both binaries; each reads the fields it needs.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Approver client
	RelayURL  string `envconfig:"RELAY_URL" default:"ws://localhost:3001/ws"`
	SessionID string `envconfig:"SESSION_ID"`
	// LaunchURL is the full approval link the user followed. Its query
	// parameters (sessionId, amount, receiver, purpose) seed the client
	// before any server round trip.
	LaunchURL string `envconfig:"LAUNCH_URL"`

	ReconnectBaseDelay   time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"2s"`
	ReconnectMaxAttempts int           `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`
	KeepaliveInterval    time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"30s"`

	// ApprovalTimeout bounds the human decision. Zero means wait forever.
	ApprovalTimeout time.Duration `envconfig:"APPROVAL_TIMEOUT" default:"0"`

	// ControlListenAddr is the approver's local control surface
	// (status / approve / reject).
	ControlListenAddr string `envconfig:"CONTROL_LISTEN_ADDR" default:"127.0.0.1:8077"`

	// Wallet collaborator
	WalletSignerURL     string        `envconfig:"WALLET_SIGNER_URL"`
	WalletSignerTimeout time.Duration `envconfig:"WALLET_SIGNER_TIMEOUT" default:"60s"`
	WalletID            string        `envconfig:"WALLET_ID"`
	Network             string        `envconfig:"NEAR_NETWORK" default:"testnet"`
	NetworksFile        string        `envconfig:"NETWORKS_FILE"`

	// Relay endpoint (relayd)
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3001"`
	DBPath     string `envconfig:"DB_PATH" default:"relay.db"`

	// HTTP bridge (relayd)
	BridgeListenAddr  string `envconfig:"BRIDGE_LISTEN_ADDR" default:":8090"`
	BridgeAPIKey      string `envconfig:"BRIDGE_API_KEY"`
	BridgeCORSOrigins string `envconfig:"BRIDGE_CORS_ORIGINS"`
	// WalletBaseURL is the public page users visit to approve; approval
	// links embed the session ID into it.
	WalletBaseURL string `envconfig:"WALLET_BASE_URL" default:"http://localhost:3000"`
	// RelayHTTPURL is the upstream the bridge's link endpoint fetches
	// session data from. Defaults to the bridge's own session read path;
	// split deployments point it at the remote relay.
	RelayHTTPURL string `envconfig:"RELAY_HTTP_URL" default:"http://localhost:8090"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
