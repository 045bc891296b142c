// Package config reads and writes the engine's TOML configuration file:
// the manifest location, key provider, chunk strategy, compression,
// and the set of storage providers a backup is distributed across.
// Grounded in the teacher's internal/config/config.go (Manager's
// Read/Write/Init shape over github.com/BurntSushi/toml), generalized
// from bt's vault-list/staging-area model to the enigma-core config
// surface described by original_source's enigma-core/src/config.rs.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level [enigma] document plus its repeated
// [[providers]] list.
type Config struct {
	Enigma    Enigma           `toml:"enigma"`
	Providers []ProviderConfig `toml:"providers"`
	S3Proxy   *S3ProxyConfig   `toml:"s3_proxy,omitempty"`
	Raft      *RaftConfig      `toml:"raft,omitempty"`
}

// Enigma holds the core engine settings.
type Enigma struct {
	DBPath        string        `toml:"db_path"`
	LogDir        string        `toml:"log_dir"`
	KeyProvider   string        `toml:"key_provider"` // local, azure-keyvault, gcp-secretmanager, aws-secretsmanager
	KeyfilePath   string        `toml:"keyfile_path"`
	Distribution  string        `toml:"distribution"` // RoundRobin or Weighted
	ChunkStrategy ChunkStrategy `toml:"chunk_strategy"`
	Compression   Compression   `toml:"compression"`
}

// ChunkStrategy is a tagged union: exactly one of Cdc or Fixed is set.
type ChunkStrategy struct {
	Cdc   *CdcStrategy   `toml:"Cdc,omitempty"`
	Fixed *FixedStrategy `toml:"Fixed,omitempty"`
}

// CdcStrategy configures content-defined (Rabin rolling hash) chunking.
type CdcStrategy struct {
	TargetSize int `toml:"target_size"`
}

// FixedStrategy configures fixed-size chunking.
type FixedStrategy struct {
	Size int `toml:"size"`
}

// Compression configures whole-chunk zstd compression.
type Compression struct {
	Enabled bool `toml:"enabled"`
	Level   int  `toml:"level"` // 1-22
}

// ProviderConfig is one entry of the repeated [[providers]] list.
// Access/secret keys may be literal or "enc:<base64>" tokens.
type ProviderConfig struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"` // Local, S3, S3Compatible, Azure, Gcs
	Bucket      string `toml:"bucket"`
	Region      string `toml:"region,omitempty"`
	EndpointURL string `toml:"endpoint_url,omitempty"`
	PathStyle   bool   `toml:"path_style,omitempty"`
	AccessKey   string `toml:"access_key,omitempty"`
	SecretKey   string `toml:"secret_key,omitempty"`
	Weight      int    `toml:"weight"`
}

// S3ProxyConfig configures the optional S3-compatible gateway front-end.
type S3ProxyConfig struct {
	ListenAddr string `toml:"listen_addr"`
	AccessKey  string `toml:"access_key,omitempty"`
	SecretKey  string `toml:"secret_key,omitempty"`
}

// RaftConfig configures the optional consensus layer. Field shape
// follows original_source's enigma-raft/src/config.rs RaftConfig/
// PeerConfig: node_id, a listen address, all cluster peers (including
// this node, each as an id/addr pair), and the election/heartbeat/
// snapshot tuning knobs.
type RaftConfig struct {
	NodeID            string       `toml:"node_id"`
	ListenAddr        string       `toml:"listen_addr"`
	DataDir           string       `toml:"data_dir"`
	Peers             []PeerConfig `toml:"peers"`
	ElectionTimeoutMs int          `toml:"election_timeout_ms,omitempty"`
	HeartbeatMs       int          `toml:"heartbeat_interval_ms,omitempty"`
	SnapshotThreshold int          `toml:"snapshot_threshold,omitempty"`
}

// PeerConfig names one member of the Raft cluster, including this node.
type PeerConfig struct {
	ID   string `toml:"id"`
	Addr string `toml:"addr"`
}

// SingleNode reports whether this deployment has at most one cluster
// member and can bypass Raft entirely, matching original_source's
// RaftConfig::is_single_node.
func (r *RaftConfig) SingleNode() bool {
	return len(r.Peers) <= 1
}

// Validate checks the config-time invariants a bad or incompatible
// config file would otherwise only surface as a confusing runtime
// error: exactly one chunk strategy, a recognized distribution and key
// provider, and at least one provider entry.
func (c *Config) Validate() error {
	cs := c.Enigma.ChunkStrategy
	if (cs.Cdc == nil) == (cs.Fixed == nil) {
		return fmt.Errorf("config: exactly one of chunk_strategy.Cdc or chunk_strategy.Fixed must be set")
	}
	switch c.Enigma.Distribution {
	case "RoundRobin", "Weighted":
	default:
		return fmt.Errorf("config: unknown distribution %q", c.Enigma.Distribution)
	}
	switch c.Enigma.KeyProvider {
	case "local", "azure-keyvault", "gcp-secretmanager", "aws-secretsmanager":
	default:
		return fmt.Errorf("config: unknown key_provider %q", c.Enigma.KeyProvider)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one [[providers]] entry is required")
	}
	return nil
}

// NewConfig creates a default single-provider, local-disk Config rooted
// at baseDir, using content-defined chunking and zstd compression at
// level 3.
func NewConfig(baseDir string) *Config {
	return &Config{
		Enigma: Enigma{
			DBPath:       filepath.Join(baseDir, "manifest.db"),
			LogDir:       filepath.Join(baseDir, "log"),
			KeyProvider:  "local",
			KeyfilePath:  filepath.Join(baseDir, "keystore"),
			Distribution: "RoundRobin",
			ChunkStrategy: ChunkStrategy{
				Cdc: &CdcStrategy{TargetSize: 1 << 20},
			},
			Compression: Compression{Enabled: true, Level: 3},
		},
		Providers: []ProviderConfig{
			{Name: "local", Type: "Local", Bucket: filepath.Join(baseDir, "store"), Weight: 1},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Fails if a file already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
