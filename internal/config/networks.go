// Network definitions loaded from YAML, with built-in defaults for the
// public NEAR networks. Values support ${VAR} environment overrides the
// same way the rest of the config does.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Network describes one NEAR network the wallet collaborator can target.
type Network struct {
	ID          string `yaml:"id"`
	NodeURL     string `yaml:"node_url"`
	WalletURL   string `yaml:"wallet_url"`
	ExplorerURL string `yaml:"explorer_url"`
}

// NetworksFile is the top-level structure of networks.yaml.
type NetworksFile struct {
	Networks []Network `yaml:"networks"`
}

// DefaultNetworks returns the built-in network set.
func DefaultNetworks() []Network {
	return []Network{
		{
			ID:          "testnet",
			NodeURL:     "https://rpc.testnet.near.org",
			WalletURL:   "https://testnet.mynearwallet.com",
			ExplorerURL: "https://testnet.nearblocks.io",
		},
		{
			ID:          "mainnet",
			NodeURL:     "https://rpc.mainnet.near.org",
			WalletURL:   "https://app.mynearwallet.com",
			ExplorerURL: "https://nearblocks.io",
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

// LoadNetworks reads network definitions from path. An empty path returns
// the built-in defaults.
func LoadNetworks(path string) ([]Network, error) {
	if path == "" {
		return DefaultNetworks(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading networks file: %w", err)
	}

	var f NetworksFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing networks file: %w", err)
	}
	if len(f.Networks) == 0 {
		return nil, fmt.Errorf("networks file %s defines no networks", path)
	}

	for i := range f.Networks {
		f.Networks[i].NodeURL = expandEnv(f.Networks[i].NodeURL)
		f.Networks[i].WalletURL = expandEnv(f.Networks[i].WalletURL)
		f.Networks[i].ExplorerURL = expandEnv(f.Networks[i].ExplorerURL)
	}
	return f.Networks, nil
}

// FindNetwork returns the network with the given ID.
func FindNetwork(networks []Network, id string) (Network, error) {
	for _, n := range networks {
		if n.ID == id {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unknown network %q", id)
}
