// Package barstore is the columnar daily-bar store. Each asset's bar
// history lives in its own file under a scope-scoped directory,
// written as gob-encoded gzip and replaced atomically via
// temp-file-then-rename so a crash mid-write can never corrupt a
// series.
package barstore

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/domain"
)

// Store is a scope-aware, file-backed columnar bar store. Nothing in
// Store crosses MarketScope boundaries — callers always pass the
// scope explicitly and it is baked into the on-disk path.
type Store struct {
	baseDir string
	log     zerolog.Logger
}

// New creates a bar store rooted at baseDir.
func New(baseDir string, log zerolog.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		log:     log.With().Str("component", "barstore").Logger(),
	}
}

type fileEnvelope struct {
	AssetID string
	Series  domain.BarSeries
}

func (s *Store) dir(scope domain.MarketScope) string {
	return filepath.Join(s.baseDir, scope.Dir(), "bars_daily")
}

func (s *Store) path(scope domain.MarketScope, assetID string) string {
	safe := strings.ReplaceAll(assetID, "/", "_")
	return filepath.Join(s.dir(scope), safe+".bin.gz")
}

// Load returns the stored bar series for an asset, or an empty series
// (no error) if none has been written yet.
func (s *Store) Load(scope domain.MarketScope, assetID string) (domain.BarSeries, error) {
	path := s.path(scope, assetID)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return domain.BarSeries{AssetID: assetID}, nil
	}
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("barstore: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("barstore: gzip reader %s: %w", path, err)
	}
	defer gz.Close()

	var env fileEnvelope
	if err := gob.NewDecoder(gz).Decode(&env); err != nil {
		return domain.BarSeries{}, fmt.Errorf("barstore: decode %s: %w", path, err)
	}
	return env.Series, nil
}

// Save writes a full bar series for an asset, replacing whatever was
// there before. Callers doing an incremental update should Load, merge
// via domain.Merge, then Save the result.
func (s *Store) Save(scope domain.MarketScope, assetID string, series domain.BarSeries) error {
	if err := os.MkdirAll(s.dir(scope), 0o755); err != nil {
		return fmt.Errorf("barstore: mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	env := fileEnvelope{AssetID: assetID, Series: series}
	if err := gob.NewEncoder(gz).Encode(&env); err != nil {
		return fmt.Errorf("barstore: encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("barstore: gzip close: %w", err)
	}

	final := s.path(scope, assetID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("barstore: write temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("barstore: rename: %w", err)
	}
	return nil
}

// Upsert merges incoming bars into whatever is already stored for the
// asset, applying domain.Merge's dedupe/last-write-wins rule, and
// persists the result.
func (s *Store) Upsert(scope domain.MarketScope, assetID string, incoming domain.BarSeries) (domain.BarSeries, error) {
	existing, err := s.Load(scope, assetID)
	if err != nil {
		return domain.BarSeries{}, err
	}
	merged := domain.Merge(existing, incoming)
	if err := s.Save(scope, assetID, merged); err != nil {
		return domain.BarSeries{}, err
	}
	return merged, nil
}

// LastDate returns the most recent bar date stored for an asset, or
// "" if the asset has no history yet.
func (s *Store) LastDate(scope domain.MarketScope, assetID string) (string, error) {
	series, err := s.Load(scope, assetID)
	if err != nil {
		return "", err
	}
	last, ok := series.Last()
	if !ok {
		return "", nil
	}
	return last.Date.UTC().Format("2006-01-02"), nil
}

// BarCount returns how many bars are stored for an asset.
func (s *Store) BarCount(scope domain.MarketScope, assetID string) (int, error) {
	series, err := s.Load(scope, assetID)
	if err != nil {
		return 0, err
	}
	return len(series.Bars), nil
}

// ListSymbols enumerates every asset ID that has a bar file under the
// given scope.
func (s *Store) ListSymbols(scope domain.MarketScope) ([]string, error) {
	entries, err := os.ReadDir(s.dir(scope))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("barstore: read dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".bin.gz") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".bin.gz"))
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteBars removes an asset's stored history entirely (used when an
// asset is delisted or rejected during universe rebuild).
func (s *Store) DeleteBars(scope domain.MarketScope, assetID string) error {
	err := os.Remove(s.path(scope, assetID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("barstore: delete: %w", err)
	}
	return nil
}

// Stats summarizes the store's footprint for a scope.
type Stats struct {
	AssetCount int
	TotalBars  int
}

// ScopeStats walks every file under a scope and reports aggregate
// counts, used by the status CLI command.
func (s *Store) ScopeStats(scope domain.MarketScope) (Stats, error) {
	ids, err := s.ListSymbols(scope)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{AssetCount: len(ids)}
	for _, id := range ids {
		n, err := s.BarCount(scope, id)
		if err != nil {
			return Stats{}, err
		}
		stats.TotalBars += n
	}
	return stats, nil
}
