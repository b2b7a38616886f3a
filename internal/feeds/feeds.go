// Package feeds wires the Folio API client, the in-memory stores and
// the snapshot repository into refresh coordinator streams. Each feed
// is one stream: fetch from the API, publish to the store, persist a
// snapshot for warm restarts.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
	"github.com/pocketfolio/pocketfolio/internal/store"
	"github.com/pocketfolio/pocketfolio/internal/store/snapshot"
	"github.com/pocketfolio/pocketfolio/internal/utils"
)

// Stream keys as registered with the refresh coordinator.
const (
	StreamPrices  = "prices"
	StreamSummary = "portfolio-summary"
	StreamMovers  = "top-movers"
)

const (
	// maxSymbolsPerRequest caps how many symbols go into one quotes call.
	// Larger watchlists are split into chunks fetched concurrently.
	maxSymbolsPerRequest = 50

	// maxConcurrentChunks limits how many chunk requests run at once.
	maxConcurrentChunks = 4

	// moversLimit is how many entries the top-movers board keeps.
	moversLimit = 10
)

// Snapshot cache keys per table.
const (
	snapshotKeyQuotes = "tracked"
	snapshotKeyMovers = "board"
)

// Config holds the dependencies and tuning for the feed registrar.
type Config struct {
	Client    *folioapi.Client
	Quotes    *store.QuoteStore
	Summary   *store.SummaryStore
	Movers    *store.MoverStore
	Snapshots *snapshot.Repository // optional, nil disables persistence

	Symbols     []string
	PortfolioID string

	PricesInterval  time.Duration
	SummaryInterval time.Duration
	MoversInterval  time.Duration

	Log zerolog.Logger
}

// Registrar owns the fetch functions behind the refresh streams.
type Registrar struct {
	client    *folioapi.Client
	quotes    *store.QuoteStore
	summary   *store.SummaryStore
	movers    *store.MoverStore
	snapshots *snapshot.Repository

	symbols     []string
	portfolioID string

	pricesInterval  time.Duration
	summaryInterval time.Duration
	moversInterval  time.Duration

	log zerolog.Logger
}

// NewRegistrar creates a feed registrar from its dependencies
func NewRegistrar(cfg Config) *Registrar {
	return &Registrar{
		client:          cfg.Client,
		quotes:          cfg.Quotes,
		summary:         cfg.Summary,
		movers:          cfg.Movers,
		snapshots:       cfg.Snapshots,
		symbols:         cfg.Symbols,
		portfolioID:     cfg.PortfolioID,
		pricesInterval:  cfg.PricesInterval,
		summaryInterval: cfg.SummaryInterval,
		moversInterval:  cfg.MoversInterval,
		log:             cfg.Log.With().Str("component", "feeds").Logger(),
	}
}

// Register subscribes all three feeds with the coordinator and returns
// a combined unsubscribe function. On failure, any streams already
// registered are unsubscribed before returning.
func (r *Registrar) Register(c *refresh.Coordinator) (func(), error) {
	subs := []struct {
		key      string
		fn       refresh.FetchFunc
		interval time.Duration
	}{
		{StreamPrices, r.fetchPrices, r.pricesInterval},
		{StreamSummary, r.fetchSummary, r.summaryInterval},
		{StreamMovers, r.fetchMovers, r.moversInterval},
	}

	unsubs := make([]func(), 0, len(subs))
	for _, s := range subs {
		unsub, err := c.Subscribe(s.key, s.fn, s.interval)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, fmt.Errorf("failed to subscribe stream %s: %w", s.key, err)
		}
		unsubs = append(unsubs, unsub)
		r.log.Debug().Str("stream", s.key).Dur("interval", s.interval).Msg("Stream registered")
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

// fetchPrices pulls quotes for every tracked symbol. Watchlists larger
// than maxSymbolsPerRequest are split into chunks fetched concurrently,
// and the store is only updated once all chunks succeed.
func (r *Registrar) fetchPrices(ctx context.Context) error {
	defer utils.OperationTimer("fetch_prices", r.log)()

	chunks := chunkSymbols(r.symbols, maxSymbolsPerRequest)
	if len(chunks) == 0 {
		return nil
	}

	var mu sync.Mutex
	collected := make([]folioapi.Quote, 0, len(r.symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChunks)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			quotes, err := r.client.Quotes(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			collected = append(collected, quotes...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// A cancelled fetch is not a data failure, leave the store alone
		if ctx.Err() != context.Canceled {
			r.quotes.SetError(err)
		}
		return err
	}

	r.quotes.SetAll(collected)
	r.persist("quotes", snapshotKeyQuotes, collected, snapshot.TTLQuotes)
	return nil
}

// fetchSummary pulls the portfolio summary
func (r *Registrar) fetchSummary(ctx context.Context) error {
	defer utils.OperationTimer("fetch_summary", r.log)()

	summary, err := r.client.PortfolioSummary(ctx, r.portfolioID)
	if err != nil {
		if ctx.Err() != context.Canceled {
			r.summary.SetError(err)
		}
		return err
	}

	r.summary.Set(summary)
	r.persist("portfolio_summary", r.portfolioID, summary, snapshot.TTLSummary)
	return nil
}

// fetchMovers pulls the top-movers board
func (r *Registrar) fetchMovers(ctx context.Context) error {
	defer utils.OperationTimer("fetch_movers", r.log)()

	movers, err := r.client.TopMovers(ctx, moversLimit)
	if err != nil {
		if ctx.Err() != context.Canceled {
			r.movers.SetError(err)
		}
		return err
	}

	r.movers.Set(movers)
	r.persist("movers", snapshotKeyMovers, movers, snapshot.TTLMovers)
	return nil
}

// WarmFromSnapshots populates the in-memory stores from persisted
// snapshots, stale ones included. Called before the first fetch so a
// restart serves data immediately instead of waiting on the API.
func (r *Registrar) WarmFromSnapshots() {
	if r.snapshots == nil {
		return
	}

	if raw, err := r.snapshots.Get("quotes", snapshotKeyQuotes); err == nil && raw != nil {
		var quotes []folioapi.Quote
		if err := json.Unmarshal(raw, &quotes); err != nil {
			r.log.Warn().Err(err).Msg("Failed to decode quotes snapshot")
		} else {
			r.quotes.SetAll(quotes)
			r.log.Info().Int("count", len(quotes)).Msg("Warmed quotes from snapshot")
		}
	}

	if raw, err := r.snapshots.Get("portfolio_summary", r.portfolioID); err == nil && raw != nil {
		var summary folioapi.PortfolioSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			r.log.Warn().Err(err).Msg("Failed to decode summary snapshot")
		} else {
			r.summary.Set(&summary)
			r.log.Info().Str("portfolio_id", summary.PortfolioID).Msg("Warmed summary from snapshot")
		}
	}

	if raw, err := r.snapshots.Get("movers", snapshotKeyMovers); err == nil && raw != nil {
		var movers []folioapi.Mover
		if err := json.Unmarshal(raw, &movers); err != nil {
			r.log.Warn().Err(err).Msg("Failed to decode movers snapshot")
		} else {
			r.movers.Set(movers)
			r.log.Info().Int("count", len(movers)).Msg("Warmed movers from snapshot")
		}
	}
}

// persist writes a snapshot if a repository is configured. Persistence
// is best-effort, the in-memory store already has the data.
func (r *Registrar) persist(table, key string, data interface{}, ttl time.Duration) {
	if r.snapshots == nil {
		return
	}
	if err := r.snapshots.Store(table, key, data, ttl); err != nil {
		r.log.Warn().Err(err).Str("table", table).Msg("Failed to persist snapshot")
	}
}

// chunkSymbols splits a symbol list into slices of at most size entries
func chunkSymbols(symbols []string, size int) [][]string {
	if len(symbols) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}
