package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
	"github.com/TobiSchelling/emojidash/internal/config"
	"github.com/TobiSchelling/emojidash/internal/database"
	"github.com/TobiSchelling/emojidash/internal/dataset"
	"github.com/TobiSchelling/emojidash/internal/metrics"
	"github.com/TobiSchelling/emojidash/internal/normalize"
)

// ErrNoDataset is returned when a session has not uploaded anything yet.
var ErrNoDataset = errors.New("no dataset loaded for session")

// Upload results reported to metrics.
const (
	UploadOK       = "ok"
	UploadCached   = "cached"
	UploadRejected = "rejected"
	UploadError    = "error"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of one ingest.
type Result struct {
	Hash   string
	Cached bool
	Table  *dataset.Table
	Steps  []StepResult

	// entry is the cache row a cached read was served from.
	entry *database.Dataset
}

// Upload is one workbook handed in by a session.
type Upload struct {
	SessionID string
	FileName  string
	Data      []byte
}

// Pipeline orchestrates read, normalize and cache for uploads, and builds
// dashboards from the cached tables.
type Pipeline struct {
	db      *database.DB
	log     *zap.Logger
	metrics *metrics.Metrics

	// Normalizer draws from a single random source that is not safe for
	// concurrent use.
	mu         sync.Mutex
	normalizer *normalize.Normalizer
}

// New creates a new pipeline. A zero normalize.seed seeds from the clock.
func New(cfg *config.Config, db *database.DB, log *zap.Logger, m *metrics.Metrics) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("normalize timezone: %w", err)
	}
	seed := cfg.Normalize.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	return &Pipeline{
		db:      db,
		log:     log,
		metrics: m,
		normalizer: normalize.New(rng,
			normalize.WithLocation(loc),
			normalize.WithLogger(log.Named("normalize")),
		),
	}, nil
}

// Ingest runs the 3-step upload pipeline. Identical workbooks are served
// from the cache without being normalized again. A workbook that fails to
// load leaves the session without a dataset. The returned error is the
// first failing step's error; Result is always non-nil.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (*Result, error) {
	r := &Result{Hash: contentHash(up.Data)}
	log := p.log.With(zap.String("session", up.SessionID), zap.String("file", up.FileName))

	// Step 1: Read
	raw, step := p.runRead(ctx, r, up)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		p.metrics.IncUpload(UploadError)
		log.Warn("upload rejected", zap.Error(step.Err))
		p.detach(ctx, up.SessionID)
		return r, step.Err
	}

	// Step 2: Normalize
	if !r.Cached {
		step = p.runNormalize(r, raw)
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			p.metrics.IncUpload(UploadError)
			log.Warn("normalization failed", zap.Error(step.Err))
			p.detach(ctx, up.SessionID)
			return r, step.Err
		}
	}

	// Step 3: Cache
	step = p.runCache(ctx, r, up)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		p.metrics.IncUpload(UploadError)
		log.Error("caching dataset failed", zap.Error(step.Err))
		return r, step.Err
	}

	if r.Cached {
		p.metrics.IncUpload(UploadCached)
	} else {
		p.metrics.IncUpload(UploadOK)
	}
	log.Info("dataset loaded",
		zap.String("hash", r.Hash[:12]),
		zap.String("size", humanize.Bytes(uint64(len(up.Data)))),
		zap.Int("rows", r.Table.Len()),
		zap.Bool("cached", r.Cached),
	)
	return r, nil
}

func (p *Pipeline) runRead(ctx context.Context, r *Result, up Upload) (*dataset.RawTable, StepResult) {
	cached, err := p.db.GetDataset(ctx, r.Hash)
	if err != nil {
		return nil, StepResult{Name: "Read", Err: fmt.Errorf("cache lookup: %w", err)}
	}
	if cached != nil {
		t, err := decodeTable(cached.Payload)
		if err == nil {
			r.Table = t
			r.Cached = true
			r.entry = cached
			return nil, StepResult{
				Name:    "Read",
				Summary: fmt.Sprintf("Reused cached dataset %s (%d rows)", cached.FileName, cached.RowCount),
			}
		}
		p.log.Warn("discarding unreadable cache entry", zap.String("hash", r.Hash), zap.Error(err))
	}

	raw, err := dataset.ReadXLSX(bytes.NewReader(up.Data))
	if err != nil {
		return nil, StepResult{Name: "Read", Err: err}
	}
	return raw, StepResult{
		Name:    "Read",
		Summary: fmt.Sprintf("Read %d rows, %d columns", len(raw.Rows), len(raw.Columns)),
	}
}

func (p *Pipeline) runNormalize(r *Result, raw *dataset.RawTable) StepResult {
	p.mu.Lock()
	t, err := p.normalizer.Normalize(raw)
	p.mu.Unlock()
	if err != nil {
		return StepResult{Name: "Normalize", Err: err}
	}
	r.Table = t
	return StepResult{
		Name:    "Normalize",
		Summary: fmt.Sprintf("Filled %d columns", len(t.Filled)),
	}
}

func (p *Pipeline) runCache(ctx context.Context, r *Result, up Upload) StepResult {
	entry := r.entry
	if entry == nil {
		payload, err := json.Marshal(r.Table)
		if err != nil {
			return StepResult{Name: "Cache", Err: fmt.Errorf("encoding table: %w", err)}
		}
		entry = &database.Dataset{
			ContentHash: r.Hash,
			FileName:    up.FileName,
			SizeBytes:   int64(len(up.Data)),
			RowCount:    r.Table.Len(),
			Payload:     payload,
		}
	}

	// A cached entry is written back as well: another session's prune may
	// have dropped it since the read.
	pruned, err := p.db.StoreSession(ctx, up.SessionID, entry)
	if err != nil {
		return StepResult{Name: "Cache", Err: err}
	}
	stats, err := p.db.GetStats(ctx)
	if err != nil {
		return StepResult{Name: "Cache", Err: fmt.Errorf("reading cache stats: %w", err)}
	}
	p.metrics.SetCachedDatasets(stats.Datasets)

	return StepResult{
		Name:    "Cache",
		Summary: fmt.Sprintf("%d datasets cached, %d pruned", stats.Datasets, pruned),
	}
}

func (p *Pipeline) detach(ctx context.Context, sessionID string) {
	if err := p.db.DetachSession(ctx, sessionID); err != nil {
		p.log.Warn("detaching session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if _, err := p.db.PruneDatasets(ctx); err != nil {
		p.log.Warn("pruning cache", zap.Error(err))
	}
}

// SessionTable returns the canonical table attached to a session.
func (p *Pipeline) SessionTable(ctx context.Context, sessionID string) (*dataset.Table, error) {
	d, err := p.db.GetSessionDataset(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session dataset: %w", err)
	}
	if d == nil {
		return nil, ErrNoDataset
	}
	return decodeTable(d.Payload)
}

// Dashboard builds every derivation for t under the filter.
func (p *Pipeline) Dashboard(t *dataset.Table, f aggregate.Filter) (*aggregate.Dashboard, error) {
	start := time.Now()
	d, err := aggregate.Build(t, f)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	skipped := make(map[string]string, len(d.Skipped))
	for _, s := range d.Skipped {
		skipped[s.Derivation] = string(s.Reason)
		p.log.Debug("derivation skipped",
			zap.String("derivation", s.Derivation),
			zap.String("reason", string(s.Reason)),
		)
	}
	p.metrics.ObserveDashboard(elapsed, skipped)
	p.log.Debug("dashboard built",
		zap.Int("rows", t.Len()),
		zap.String("festival", f.Festival),
		zap.String("sentiment", f.Sentiment),
		zap.Int("top_n", f.TopN),
		zap.Duration("elapsed", elapsed),
	)
	return d, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func decodeTable(payload []byte) (*dataset.Table, error) {
	var t dataset.Table
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decoding cached table: %w", err)
	}
	return &t, nil
}
