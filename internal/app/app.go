// Package app wires a loaded config.Config into a running engine: opens
// the manifest, the key provider, every configured storage provider, the
// chunker and compressor, and finally the pipeline.Engine that backup,
// restore, verify, and gc all run against. Grounded in the teacher's
// internal/app/app.go (NewBTApp's construct-everything-in-one-place
// shape, deferred Close) generalized from bt's vault/staging model to
// enigma's manifest/distributor/crypto model.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/enigma-backup/enigma/internal/chunk"
	"github.com/enigma-backup/enigma/internal/compress"
	"github.com/enigma-backup/enigma/internal/config"
	"github.com/enigma-backup/enigma/internal/consensus"
	cryptopkg "github.com/enigma-backup/enigma/internal/crypto"
	"github.com/enigma-backup/enigma/internal/distributor"
	"github.com/enigma-backup/enigma/internal/distributor/providers"
	enigmafs "github.com/enigma-backup/enigma/internal/fs"
	"github.com/enigma-backup/enigma/internal/keyprovider"
	"github.com/enigma-backup/enigma/internal/manifest"
	"github.com/enigma-backup/enigma/internal/pipeline"
	"github.com/enigma-backup/enigma/internal/s3gateway"
)

// App bundles the fully wired engine for a single invocation of the CLI.
type App struct {
	cfg *config.Config
	// rawManifest is the underlying SQLite manifest regardless of
	// whether consensus is enabled; manifest.BackupTo's VACUUM INTO
	// will use it once consensus snapshot production is filled in.
	rawManifest  *manifest.SQLiteManifest
	manifest     manifest.Manifest
	consensusSrv *http.Server
	keys         cryptopkg.Provider
	pipeline     *pipeline.Engine
	ignore       *enigmafs.IgnoreMatcher
	logFile      *os.File
}

// Gateway builds the S3-compatible front end from the [s3_proxy] block,
// or reports that none was configured. Construction is deferred to here
// rather than into New because s3gateway.New is never expected to
// succeed yet (see its doc comment); a deployment that never configures
// [s3_proxy] should never pay for that failure.
func (a *App) Gateway() (s3gateway.Gateway, error) {
	if a.cfg.S3Proxy == nil {
		return nil, fmt.Errorf("app: no [s3_proxy] block configured")
	}
	return s3gateway.New(*a.cfg.S3Proxy, a.pipeline)
}

// New opens the manifest and key provider at the paths named in cfg,
// constructs every configured storage provider, and builds the pipeline
// engine. passphrase unlocks (or, on first run, creates) the local key
// provider and is also used to decrypt any "enc:" provider credentials
// in cfg.Providers.
func New(cfg *config.Config, passphrase []byte) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, logFile, err := newLogger(cfg.Enigma.LogDir)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	mf, err := manifest.Open(cfg.Enigma.DBPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening manifest: %w", err)
	}

	keys, err := openKeyProvider(cfg.Enigma, passphrase)
	if err != nil {
		mf.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening key provider: %w", err)
	}

	ctx := context.Background()
	activeManifest, consensusSrv, err := buildConsensus(mf, cfg.Raft, logger)
	if err != nil {
		keys.Close()
		mf.Close()
		logFile.Close()
		return nil, fmt.Errorf("building consensus layer: %w", err)
	}

	dist, err := buildDistributor(ctx, activeManifest, cfg.Enigma.Distribution, cfg.Providers, passphrase)
	if err != nil {
		keys.Close()
		mf.Close()
		logFile.Close()
		return nil, fmt.Errorf("building distributor: %w", err)
	}

	chunker, err := chunkerFromStrategy(cfg.Enigma.ChunkStrategy)
	if err != nil {
		keys.Close()
		mf.Close()
		logFile.Close()
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	compressor := compress.New(cfg.Enigma.Compression.Enabled, cfg.Enigma.Compression.Level)

	eng := pipeline.NewEngine(pipeline.Config{
		Manifest:    activeManifest,
		Distributor: dist,
		Keys:        keys,
		Chunker:     chunker,
		Compressor:  compressor,
		Logger:      logger,
		Concurrency: 4,
	})

	ignore, err := loadIgnoreMatcher(cfg.Enigma.DBPath)
	if err != nil {
		keys.Close()
		mf.Close()
		logFile.Close()
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	return &App{
		cfg:          cfg,
		rawManifest:  mf,
		manifest:     activeManifest,
		consensusSrv: consensusSrv,
		keys:         keys,
		pipeline:     eng,
		ignore:       ignore,
		logFile:      logFile,
	}, nil
}

// buildConsensus wraps mf behind a consensus.Node when raftCfg is set,
// starting the node's RPC listener so peers can reach it, and returns
// the manifest.Manifest the rest of the engine should use: mf itself
// unchanged when raftCfg is nil (the common single-engine deployment),
// or a consensus.ReplicatedManifest routing writes through the node
// otherwise. Single-node Raft configs (raftCfg.SingleNode(), at most
// one peer listed) still get a Node, but Node.Submit bypasses the log
// for them and no RPC listener is started, since there is no peer to
// dial in.
func buildConsensus(mf *manifest.SQLiteManifest, raftCfg *config.RaftConfig, logger *slog.Logger) (manifest.Manifest, *http.Server, error) {
	if raftCfg == nil {
		return mf, nil, nil
	}

	peers := make([]consensus.PeerConfig, len(raftCfg.Peers))
	for i, p := range raftCfg.Peers {
		peers[i] = consensus.PeerConfig{ID: p.ID, Addr: p.Addr}
	}

	sm := consensus.NewStateMachine(mf)
	node := consensus.NewNode(consensus.Config{
		NodeID:            raftCfg.NodeID,
		Peers:             peers,
		SingleNode:        raftCfg.SingleNode(),
		ElectionTimeout:   time.Duration(raftCfg.ElectionTimeoutMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(raftCfg.HeartbeatMs) * time.Millisecond,
		SnapshotThreshold: raftCfg.SnapshotThreshold,
	}, sm, consensus.NewHTTPTransport(0))
	node.Run()

	srv := &http.Server{Addr: raftCfg.ListenAddr, Handler: consensus.NewHandler(node)}
	if !node.SingleNode() {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("consensus listener stopped", "error", err)
			}
		}()
	}

	return consensus.NewReplicatedManifest(mf, node, nil), srv, nil
}

// openKeyProvider opens the key provider named by e.KeyProvider via
// internal/keyprovider.
func openKeyProvider(e config.Enigma, passphrase []byte) (cryptopkg.Provider, error) {
	return keyprovider.Open(e.KeyProvider, e.KeyfilePath, passphrase)
}

// buildDistributor constructs one distributor.Provider per cfg.Providers
// entry, registers each with the manifest (so chunk rows can reference a
// stable provider ID across restarts), and assembles the selection
// strategy named by distribution.
func buildDistributor(ctx context.Context, mf manifest.Manifest, distribution string, providerCfgs []config.ProviderConfig, passphrase []byte) (*distributor.Distributor, error) {
	var entries []distributor.Entry
	for _, pc := range providerCfgs {
		backend, err := buildProvider(ctx, pc, passphrase)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		registered, err := mf.RegisterProvider(ctx, manifest.Provider{
			Name:   pc.Name,
			Type:   pc.Type,
			Bucket: pc.Bucket,
			Region: pc.Region,
			Weight: pc.Weight,
		})
		if err != nil {
			return nil, fmt.Errorf("registering provider %q: %w", pc.Name, err)
		}
		entries = append(entries, distributor.Entry{
			ID:       registered.ID,
			Provider: backend,
			Weight:   pc.Weight,
		})
	}

	switch distribution {
	case "Weighted":
		return distributor.NewWeighted(entries)
	default:
		return distributor.NewRoundRobin(entries)
	}
}

// buildProvider dispatches on a single [[providers]] entry's Type,
// decrypting its credentials if they carry the "enc:" prefix.
func buildProvider(ctx context.Context, pc config.ProviderConfig, passphrase []byte) (distributor.Provider, error) {
	accessKey, err := cryptopkg.DecryptCredential(pc.AccessKey, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting access key: %w", err)
	}
	secretKey, err := cryptopkg.DecryptCredential(pc.SecretKey, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret key: %w", err)
	}

	switch pc.Type {
	case "Local":
		return providers.NewLocal(pc.Name, pc.Bucket)
	case "S3", "S3Compatible":
		return providers.NewS3(pc.Name, providers.S3Config{
			Bucket:          pc.Bucket,
			Region:          pc.Region,
			Endpoint:        pc.EndpointURL,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			ForcePathStyle:  pc.PathStyle,
		})
	case "Gcs":
		return providers.NewGCS(ctx, pc.Name, providers.GCSConfig{Bucket: pc.Bucket})
	case "Azure":
		return providers.NewAzure(pc.Name, providers.AzureConfig{Account: pc.AccessKey, Container: pc.Bucket})
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// chunkerFromStrategy builds the chunk.Engine named by cfg's tagged-union
// chunk strategy.
func chunkerFromStrategy(cs config.ChunkStrategy) (chunk.Engine, error) {
	if cs.Fixed != nil {
		return chunk.NewEngine("fixed", cs.Fixed.Size)
	}
	if cs.Cdc != nil {
		return chunk.NewEngine("cdc", cs.Cdc.TargetSize)
	}
	return nil, fmt.Errorf("no chunk strategy configured")
}

// loadIgnoreMatcher reads .enigmaignore from the directory holding the
// manifest database, if present. A missing file means no extra ignore
// patterns beyond the built-in defaults.
func loadIgnoreMatcher(dbPath string) (*enigmafs.IgnoreMatcher, error) {
	ignorePath := filepath.Join(filepath.Dir(dbPath), ".enigmaignore")
	patterns, err := enigmafs.ParseIgnoreFile(ignorePath)
	if err != nil {
		return nil, err
	}
	return enigmafs.NewIgnoreMatcher(patterns), nil
}

// Backup walks sourcePath and runs a full backup through the pipeline.
func (a *App) Backup(ctx context.Context, sourcePath string) (manifest.Backup, error) {
	return a.pipeline.Backup(ctx, sourcePath, a.ignore)
}

// Restore writes backupID's files under destDir, filtered by opts.
func (a *App) Restore(ctx context.Context, backupID, destDir string, opts pipeline.RestoreOptions) ([]string, error) {
	return a.pipeline.Restore(ctx, backupID, destDir, opts)
}

// Verify re-reads and re-checks every chunk of backupID without writing.
func (a *App) Verify(ctx context.Context, backupID string) (pipeline.VerifyResult, error) {
	return a.pipeline.Verify(ctx, backupID)
}

// GC reclaims chunks with a zero reference count. dryRun only reports.
func (a *App) GC(ctx context.Context, dryRun bool) (pipeline.GCResult, error) {
	return a.pipeline.GC(ctx, dryRun)
}

// DeleteBackup removes a backup's files and decrements its chunks' ref
// counts, leaving the actual reclaim to a later GC.
func (a *App) DeleteBackup(ctx context.Context, backupID string) error {
	return a.pipeline.DeleteBackup(ctx, backupID)
}

// ListBackups returns every backup recorded in the manifest.
func (a *App) ListBackups(ctx context.Context) ([]manifest.Backup, error) {
	return a.manifest.ListBackups(ctx)
}

// Stats summarizes the manifest for status reporting.
func (a *App) Stats(ctx context.Context) (manifest.Stats, error) {
	return a.manifest.Stats(ctx)
}

// SchemaVersion reports the manifest's current and latest schema
// version and whether it was left dirty by a failed migration. Reads
// directly from rawManifest since schema version is a property of the
// underlying SQLite file regardless of whether consensus wraps it.
func (a *App) SchemaVersion() (current, latest uint, dirty bool, err error) {
	return a.rawManifest.SchemaVersion()
}

// Close releases the manifest, key provider, consensus listener, and
// log file.
func (a *App) Close() error {
	var firstErr error
	if a.consensusSrv != nil {
		if err := a.consensusSrv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.keys.Close(); err != nil {
		firstErr = err
	}
	if err := a.manifest.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
