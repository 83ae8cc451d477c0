package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "ws://localhost:3001/ws", cfg.RelayURL)
	assert.Equal(t, 2*time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 3, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, time.Duration(0), cfg.ApprovalTimeout, "no timeout unless configured")
	assert.Equal(t, ":3001", cfg.ListenAddr)
	assert.Equal(t, ":8090", cfg.BridgeListenAddr)
	assert.Equal(t, "http://localhost:3000", cfg.WalletBaseURL)
	assert.Equal(t, "http://localhost:8090", cfg.RelayHTTPURL)
	assert.Equal(t, "testnet", cfg.Network)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RELAY_URL", "wss://relay.example.com/ws")
	t.Setenv("SESSION_ID", "sess-42")
	t.Setenv("RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "5")
	t.Setenv("APPROVAL_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.com/ws", cfg.RelayURL)
	assert.Equal(t, "sess-42", cfg.SessionID)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.ApprovalTimeout)
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("WALLET_RELAY_URL", "ws://prefixed:3001/ws")

	cfg, err := LoadWithPrefix("WALLET")
	require.NoError(t, err)
	assert.Equal(t, "ws://prefixed:3001/ws", cfg.RelayURL)
}

func TestDefaultNetworks(t *testing.T) {
	nets := DefaultNetworks()
	require.Len(t, nets, 2)

	testnet, err := FindNetwork(nets, "testnet")
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.testnet.near.org", testnet.NodeURL)

	_, err = FindNetwork(nets, "betanet")
	assert.Error(t, err)
}

func TestLoadNetworksFromFile(t *testing.T) {
	t.Setenv("NEAR_RPC_HOST", "rpc.internal.example.com")

	path := filepath.Join(t.TempDir(), "networks.yaml")
	body := `networks:
  - id: testnet
    node_url: https://${NEAR_RPC_HOST}/testnet
    wallet_url: https://testnet.mynearwallet.com
    explorer_url: https://testnet.nearblocks.io
  - id: sandbox
    node_url: http://localhost:3030
    wallet_url: http://localhost:4000
    explorer_url: https://${UNSET_VAR_FOR_TEST}/explorer
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	nets, err := LoadNetworks(path)
	require.NoError(t, err)
	require.Len(t, nets, 2)

	assert.Equal(t, "https://rpc.internal.example.com/testnet", nets[0].NodeURL)
	assert.Equal(t, "https://${UNSET_VAR_FOR_TEST}/explorer", nets[1].ExplorerURL,
		"unset variables are left as-is")
}

func TestLoadNetworksEmptyPathUsesDefaults(t *testing.T) {
	nets, err := LoadNetworks("")
	require.NoError(t, err)
	assert.Equal(t, DefaultNetworks(), nets)
}

func TestLoadNetworksRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks: []\n"), 0o600))

	_, err := LoadNetworks(path)
	assert.Error(t, err)
}
