package ethwatch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/pvzzle/buywatch/internal/chain"
	"github.com/pvzzle/buywatch/internal/clock"
	"github.com/pvzzle/buywatch/internal/cursor"
	"github.com/pvzzle/buywatch/internal/feed"
	"github.com/pvzzle/buywatch/internal/metrics"
	"github.com/pvzzle/buywatch/internal/notify"
	"github.com/pvzzle/buywatch/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	// ModeLogs finds purchases through the contract's logs.
	ModeLogs Mode = "logs"
	// ModeBlocks reads every transaction of every block in the range.
	ModeBlocks Mode = "blocks"
)

const DefaultRetryDelay = 10 * time.Second

type ChainReader interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	Logs(ctx context.Context, r chain.BlockRange, q chain.LogQuery) ([]types.Log, error)
	Transaction(ctx context.Context, ref chain.TxRef) (chain.Candidate, error)
	BlockTransactions(ctx context.Context, number uint64) ([]chain.Candidate, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, m notify.Message) error
}

type WatcherConfig struct {
	Contract    common.Address
	Topic       *common.Hash
	MinValueWei *big.Int
	Mode        Mode
	Lookback    uint64
	Workers     int
	RetryDelay  time.Duration
	ChainID     string
	Branding    Branding
}

// CycleError is a failed scan cycle. The cursor did not move.
type CycleError struct {
	Range chain.BlockRange
	Stage string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Range, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

type Watcher struct {
	client ChainReader
	out    Enqueuer
	repo   storage.Repository
	clock  clock.Clock
	log    *zap.SugaredLogger

	cfg WatcherConfig
}

func NewWatcher(
	client ChainReader,
	out Enqueuer,
	repo storage.Repository,
	log *zap.SugaredLogger,
	cfg WatcherConfig,
) *Watcher {

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLogs
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if repo == nil {
		repo = storage.Nop{}
	}

	return &Watcher{
		client: client,
		out:    out,
		repo:   repo,
		clock:  clock.Real{},
		log:    log,
		cfg:    cfg,
	}
}

// Run drives one cycle per tick. A failed cycle is retried after RetryDelay
// from the same cursor until it succeeds; only ctx ends the loop.
func (w *Watcher) Run(ctx context.Context, ticks <-chan feed.Tick) error {
	cur := cursor.New(w.cfg.Lookback)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t := <-ticks:
			next, err := w.cycle(ctx, cur, t.Height)
			if err != nil {
				return err
			}
			cur = next
		}
	}
}

func (w *Watcher) cycle(ctx context.Context, cur cursor.Cursor, height uint64) (cursor.Cursor, error) {
	for {
		start := time.Now()
		next, err := w.Step(ctx, cur, height)
		metrics.WatcherCycleLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.WatcherCyclesTotal.WithLabelValues("ok").Inc()
			return next, nil
		}
		if ctx.Err() != nil {
			return cur, ctx.Err()
		}

		metrics.WatcherCyclesTotal.WithLabelValues("error").Inc()
		var ce *CycleError
		if errors.As(err, &ce) {
			w.log.Errorw("scan cycle failed", "stage", ce.Stage, "from", ce.Range.From, "to", ce.Range.To, "retry_in", w.cfg.RetryDelay, "error", ce.Err)
		} else {
			w.log.Errorw("scan cycle failed", "retry_in", w.cfg.RetryDelay, "error", err)
		}

		if err := clock.Sleep(ctx, w.clock, w.cfg.RetryDelay); err != nil {
			return cur, err
		}
		// the announced head may be stale by now
		height = 0
	}
}

// Step scans the next range for purchases and queues an alert for each.
// It returns the advanced cursor, or cur unchanged with a *CycleError when
// any part of the range could not be evaluated. A zero height is looked up.
func (w *Watcher) Step(ctx context.Context, cur cursor.Cursor, height uint64) (cursor.Cursor, error) {
	if height == 0 {
		h, err := w.client.CurrentHeight(ctx)
		if err != nil {
			last, _ := cur.LastTo()
			return cur, &CycleError{Range: chain.BlockRange{From: last, To: last}, Stage: "height", Err: err}
		}
		height = h
	}

	r := cur.NextRange(height)
	if r.Empty() {
		return cur.Advance(r), nil
	}

	var (
		cands []chain.Candidate
		err   error
	)
	switch w.cfg.Mode {
	case ModeBlocks:
		cands, err = w.collectBlocks(ctx, r)
	default:
		cands, err = w.collectLogs(ctx, r)
	}
	if err != nil {
		return cur, &CycleError{Range: r, Stage: "fetch", Err: err}
	}

	found := 0
	for _, c := range cands {
		if !Qualifies(c, w.cfg.Contract, w.cfg.MinValueWei) {
			continue
		}
		found++
		if err := w.emit(ctx, c); err != nil {
			return cur, &CycleError{Range: r, Stage: "dispatch", Err: err}
		}
	}

	next := cur.Advance(r)
	metrics.WatcherBlocksScanned.Add(float64(r.Blocks()))
	metrics.WatcherCursorHeight.Set(float64(r.To))
	w.log.Debugw("range processed", "from", r.From, "to", r.To, "candidates", len(cands), "purchases", found)

	return next, nil
}

func (w *Watcher) collectLogs(ctx context.Context, r chain.BlockRange) ([]chain.Candidate, error) {
	logs, err := w.client.Logs(ctx, r, chain.LogQuery{Contract: w.cfg.Contract, Topic: w.cfg.Topic})
	if err != nil {
		return nil, err
	}

	// one purchase can emit several logs
	seen := make(map[common.Hash]struct{}, len(logs))
	refs := make([]chain.TxRef, 0, len(logs))
	for _, l := range logs {
		if _, ok := seen[l.TxHash]; ok {
			continue
		}
		seen[l.TxHash] = struct{}{}
		refs = append(refs, chain.TxRef{
			Hash:        l.TxHash,
			BlockHash:   l.BlockHash,
			BlockNumber: l.BlockNumber,
			Index:       l.TxIndex,
		})
	}

	out := make([]chain.Candidate, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			c, err := w.client.Transaction(gctx, ref)
			if err != nil {
				return errors.Wrapf(err, "tx %s", ref.Hash.Hex())
			}
			if c.BlockNumber == 0 {
				c.BlockNumber = ref.BlockNumber
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Watcher) collectBlocks(ctx context.Context, r chain.BlockRange) ([]chain.Candidate, error) {
	perBlock := make([][]chain.Candidate, r.Blocks())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i := range perBlock {
		number := r.From + 1 + uint64(i)
		g.Go(func() error {
			txs, err := w.client.BlockTransactions(gctx, number)
			if err != nil {
				return errors.Wrapf(err, "block %d", number)
			}
			perBlock[i] = txs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []chain.Candidate
	for _, txs := range perBlock {
		out = append(out, txs...)
	}
	return out, nil
}

func (w *Watcher) emit(ctx context.Context, c chain.Candidate) error {
	alert := FormatAlert(c, w.cfg.Branding)
	msg := notify.Message{
		ID:       uuid.New(),
		Kind:     notify.KindAlert,
		Text:     alert.Caption,
		ImageURL: alert.ImageURL,
		TxHash:   c.Hash.Hex(),
	}

	metrics.WatcherPurchasesFound.Inc()
	w.log.Infow("purchase found",
		"hash", msg.TxHash,
		"buyer", c.From.Hex(),
		"value", WeiToNative(c.Value, 6),
		"block", c.BlockNumber,
		"link", alert.LinkURL,
	)

	rec := storage.PurchaseRecord{
		Hash:      msg.TxHash,
		ChainID:   w.cfg.ChainID,
		BlockNum:  c.BlockNumber,
		FromAddr:  c.From.Hex(),
		ToAddr:    w.cfg.Contract.Hex(),
		ValueWei:  c.Value.String(),
		MessageID: msg.ID,
	}
	if err := w.repo.UpsertPurchase(ctx, rec); err != nil {
		// the alert matters more than the journal
		w.log.Warnw("journal purchase failed", "hash", msg.TxHash, "error", err)
	}

	return w.out.Enqueue(ctx, msg)
}
