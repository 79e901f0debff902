package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	userauth "github.com/MrEthical07/goUserAuth"
)

type userState struct {
	id   string
	pair *userauth.TokenPair
	mu   sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate + refresh)")
		racers      = flag.Int("racers", 16, "concurrent refreshes per user in the race phase")
		backend     = flag.String("backend", "memory", "directory backend: memory, redis or sqlite")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	engine, cleanup, err := buildEngine(*backend, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		u, err := engine.CreateUser(ctx, email, "loadtest")
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		pair, err := engine.Login(ctx, u.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = userState{id: u.ID, pair: pair}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	race := runRacePhase(ctx, engine, states, *racers)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	printRace(race)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: refresh_success=%d refresh_failure=%d reuse_detected=%d cache_hit=%d cache_miss=%d\n",
		snap.Counters[userauth.MetricRefreshSuccess],
		snap.Counters[userauth.MetricRefreshFailure],
		snap.Counters[userauth.MetricRefreshReuseDetected],
		snap.Counters[userauth.MetricCacheHit],
		snap.Counters[userauth.MetricCacheMiss],
	)

	if race.violations > 0 {
		os.Exit(1)
	}
}

func buildEngine(backend, redisAddr string) (*userauth.Engine, func(), error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	cfg := userauth.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	b := userauth.New()
	switch backend {
	case "memory":
	case "redis":
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("starting miniredis: %w", err)
			}
			cleanups = append(cleanups, mr.Close)
			addr = mr.Addr()
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanups = append(cleanups, func() { _ = client.Close() })
		b.WithRedis(client)
		cfg.Directory.Backend = userauth.DirectoryRedis
		cfg.Cache.Backend = userauth.CacheRedis
	case "sqlite":
		dir, err := os.MkdirTemp("", "userauth-loadtest-")
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = os.RemoveAll(dir) })
		cfg.Directory.Backend = userauth.DirectorySQLite
		cfg.Directory.SQLitePath = filepath.Join(dir, "users.db")
		fmt.Printf("using sqlite at %s\n", cfg.Directory.SQLitePath)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, engine.Close)
	return engine, cleanup, nil
}

func runValidatePhase(ctx context.Context, engine *userauth.Engine, states []userState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				token := state.pair.AccessToken
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.ValidateAccess(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRefreshPhase rotates each user's chain serially per user, so every
// failure here is a real error rather than a detected replay.
func runRefreshPhase(ctx context.Context, engine *userauth.Engine, states []userState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				next, err := engine.Refresh(ctx, state.pair.RefreshToken)
				d := time.Since(t0)
				if err == nil {
					state.pair = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type raceStats struct {
	users      int
	racers     int
	violations int
	total      time.Duration
}

// runRacePhase presents the same refresh credential from several goroutines
// at once for every user. Exactly one presentation may succeed.
func runRacePhase(ctx context.Context, engine *userauth.Engine, states []userState, racers int) raceStats {
	stats := raceStats{users: len(states), racers: racers}
	start := time.Now()

	for i := range states {
		token := states[i].pair.RefreshToken

		var (
			wg      sync.WaitGroup
			winners int64
		)
		gate := make(chan struct{})
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				if _, err := engine.Refresh(ctx, token); err == nil {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		close(gate)
		wg.Wait()

		if winners != 1 {
			stats.violations++
		}
	}

	stats.total = time.Since(start)
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	cyan := color.New(color.FgCyan)
	failures := color.GreenString("%d", s.failures)
	if s.failures > 0 {
		failures = color.RedString("%d", s.failures)
	}
	cyan.Printf("%s: ", name)
	fmt.Printf("ops=%d failures=%s total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		s.ops,
		failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func printRace(s raceStats) {
	cyan := color.New(color.FgCyan)
	cyan.Print("race: ")
	fmt.Printf("users=%d racers=%d total=%s ", s.users, s.racers, s.total.Round(time.Millisecond))
	if s.violations == 0 {
		color.New(color.FgGreen, color.Bold).Println("single winner per chain")
		return
	}
	color.New(color.FgRed, color.Bold).Printf("%d chains without exactly one winner\n", s.violations)
}
