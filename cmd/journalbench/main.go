// journalbench drives the alert journal with the write pattern of a busy
// presale (one purchase row plus one delivery row per alert) mixed with
// delivery counts, and prints throughput and latency percentiles.
package main

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvzzle/buywatch/internal/storage"
	"github.com/pvzzle/buywatch/internal/storage/pg"

	"github.com/alexflint/go-arg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type op int

const (
	opAlert op = iota
	opCount
)

type stats struct {
	alerts atomic.Uint64
	counts atomic.Uint64
	errs   atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) observe(o op, d time.Duration, err error, keep bool) {
	if o == opAlert {
		s.alerts.Add(1)
	} else {
		s.counts.Add(1)
	}
	if err != nil {
		s.errs.Add(1)
		return
	}
	if keep {
		s.mu.Lock()
		s.latencies = append(s.latencies, d)
		s.mu.Unlock()
	}
}

type cliArgs struct {
	DSN     string        `arg:"--dsn,env:POSTGRES_URL,required" help:"Postgres DSN"`
	Dur     time.Duration `arg:"--dur" default:"30s" help:"measured duration"`
	Warmup  time.Duration `arg:"--warmup" default:"3s" help:"warmup duration (not reported)"`
	RPS     int           `arg:"--rps" default:"50" help:"operations per second"`
	Counts  int           `arg:"--counts" default:"1" help:"delivery counts per alert write"`
	Workers int           `arg:"--workers" default:"8" help:"concurrent workers"`
}

func main() {
	var args cliArgs
	arg.MustParse(&args)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, args.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "journalbench:", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := pg.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "journalbench:", err)
		os.Exit(1)
	}

	fmt.Println("warmup:", args.Warmup)
	run(ctx, repo, args.Workers, args.RPS, args.Counts, args.Warmup, false)

	fmt.Println("measuring:", args.Dur)
	start := time.Now()
	st := run(ctx, repo, args.Workers, args.RPS, args.Counts, args.Dur, true)
	report(st, time.Since(start))
}

func run(ctx context.Context, repo *pg.Postgres, workers, rps, counts int, dur time.Duration, keep bool) *stats {
	ctx, cancel := context.WithTimeout(ctx, dur)
	defer cancel()

	st := &stats{}
	lim := rate.NewLimiter(rate.Limit(rps), 1)
	jobs := make(chan op, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for o := range jobs {
				t0 := time.Now()
				err := do(gctx, repo, o, r)
				st.observe(o, time.Since(t0), err, keep)
			}
			return nil
		})
	}

	// counts reads per alert write, repeating
	pattern := []op{opAlert}
	for i := 0; i < counts; i++ {
		pattern = append(pattern, opCount)
	}
	for i := 0; lim.Wait(ctx) == nil; i++ {
		jobs <- pattern[i%len(pattern)]
	}
	close(jobs)

	_ = g.Wait()
	return st
}

func do(ctx context.Context, repo *pg.Postgres, o op, r *rand.Rand) error {
	if o == opCount {
		_, err := repo.CountDeliveries(ctx, storage.DeliverySent)
		return err
	}

	p := fakePurchase(r)
	if err := repo.UpsertPurchase(ctx, p); err != nil {
		return err
	}
	hash := p.Hash
	return repo.AddDelivery(ctx, storage.DeliveryRecord{
		MessageID: p.MessageID,
		Kind:      "alert",
		TxHash:    &hash,
		Status:    storage.DeliverySent,
		At:        time.Now().UTC(),
	})
}

func fakePurchase(r *rand.Rand) storage.PurchaseRecord {
	var hash common.Hash
	var from common.Address
	r.Read(hash[:])
	r.Read(from[:])

	// 0.025 to ~1 BNB
	wei := new(big.Int).Mul(big.NewInt(25+r.Int63n(1000)), big.NewInt(1_000_000_000_000_000))

	return storage.PurchaseRecord{
		Hash:      hash.Hex(),
		ChainID:   "56",
		BlockNum:  uint64(40_000_000 + r.Intn(1_000_000)),
		FromAddr:  from.Hex(),
		ToAddr:    "0x2119de8f257d27662991198389E15Bf8d1F4aB24",
		ValueWei:  wei.String(),
		MessageID: uuid.New(),
	}
}

func report(st *stats, d time.Duration) {
	alerts, countOps, errs := st.alerts.Load(), st.counts.Load(), st.errs.Load()
	total := alerts + countOps

	fmt.Printf("\n== journal ==\n")
	fmt.Printf("duration: %s\n", d.Round(time.Millisecond))
	fmt.Printf("ops: total=%d alerts=%d counts=%d errors=%d\n", total, alerts, countOps, errs)
	if d > 0 {
		fmt.Printf("throughput: %.2f ops/s\n", float64(total)/d.Seconds())
	}

	lat := st.latencies
	if len(lat) == 0 {
		fmt.Println("no latency samples")
		return
	}
	slices.Sort(lat)
	p := func(q float64) time.Duration { return lat[int(q*float64(len(lat)-1))] }
	fmt.Printf("latency p50=%s p95=%s p99=%s max=%s\n", p(0.50), p(0.95), p(0.99), lat[len(lat)-1])
}
