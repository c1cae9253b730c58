// Command authcore-loadtest measures session whitelist throughput against
// Redis, or an embedded miniredis when no address is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tunehub/authcore/internal/requestctx"
	"github.com/tunehub/authcore/jwt"
	"github.com/tunehub/authcore/session"
)

type userState struct {
	id string
	mu sync.Mutex
	// tokens maps device IP to the last refresh token written for it.
	tokens map[string]string
}

func main() {
	var (
		users       = flag.Int("users", 20000, "number of users to seed")
		devices     = flag.Int("devices", 3, "devices per user, at most the session cap")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (lookup + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", session.DefaultRedisPrefix, "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if *devices <= 0 || *devices > session.MaxSessionsPerUser {
		fmt.Fprintf(os.Stderr, "devices must be between 1 and %d\n", session.MaxSessionsPerUser)
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(session.NewRedisRepository(client, *prefix, 24*time.Hour))

	states := make([]userState, *users)
	fmt.Printf("seeding %d users x %d devices...\n", *users, *devices)
	startSeed := time.Now()
	for i := range states {
		states[i] = userState{id: fmt.Sprintf("user-%d", i), tokens: make(map[string]string, *devices)}
		for d := 0; d < *devices; d++ {
			ip := deviceIP(d)
			tok, err := jwt.NewRefreshToken()
			if err != nil {
				fmt.Fprintf(os.Stderr, "token: %v\n", err)
				os.Exit(1)
			}
			if out := store.UpsertRefreshToken(requestctx.WithClientIP(ctx, ip), states[i].id, tok); !out.Persisted() {
				fmt.Fprintf(os.Stderr, "seed failed: %s\n", out)
				os.Exit(1)
			}
			states[i].tokens[ip] = tok
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) bool {
		st := &states[r.Intn(len(states))]
		ip := deviceIP(r.Intn(*devices))
		st.mu.Lock()
		want := st.tokens[ip]
		st.mu.Unlock()
		got, ok := store.GetRefreshToken(requestctx.WithClientIP(ctx, ip), st.id)
		return ok && got == want
	})
	rotateStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) bool {
		st := &states[r.Intn(len(states))]
		ip := deviceIP(r.Intn(*devices))
		tok, err := jwt.NewRefreshToken()
		if err != nil {
			return false
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if out := store.UpsertRefreshToken(requestctx.WithClientIP(ctx, ip), st.id, tok); !out.Persisted() {
			return false
		}
		st.tokens[ip] = tok
		return true
	})

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
}

func deviceIP(d int) string {
	return fmt.Sprintf("10.0.%d.%d", d/250, d%250+1)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) bool) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r, i)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
