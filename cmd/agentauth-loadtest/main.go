// Command agentauth-loadtest measures ValidateToken and the passcode round trip under
// concurrency. It seeds agents into a temporary SQLite store and uses miniredis unless
// -redis-addr or REDIS_ADDR points at a real server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldops/agentauth"
	"github.com/fieldops/agentauth/store/sqlite"
)

const seedPassword = "load-test-password"

var codePattern = regexp.MustCompile(`Your OTP is: (\d+),`)

// codeMailer keeps the last passcode mailed to each address.
type codeMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *codeMailer) Send(ctx context.Context, to, subject, body string) error {
	match := codePattern.FindStringSubmatch(body)
	if len(match) != 2 {
		return fmt.Errorf("no passcode in body")
	}
	m.mu.Lock()
	m.codes[to] = match[1]
	m.mu.Unlock()
	return nil
}

func (m *codeMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func main() {
	var (
		agents      = flag.Int("agents", 200, "number of agents to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "token validations to run")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "aa-load", "cache key prefix")
	)
	flag.Parse()

	if *agents <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "agents, concurrency, and ops must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	dir, err := os.MkdirTemp("", "agentauth-loadtest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	store, err := sqlite.Open(filepath.Join(dir, "agents.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cfg := agentauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("agentauth-loadtest-secret-0123456789")
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Cache.KeyPrefix = *prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	mailer := &codeMailer{codes: make(map[string]string)}
	engine, err := agentauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *agents)
	tokens := make([]string, *agents)
	fmt.Printf("seeding %d agents...\n", *agents)
	startSeed := time.Now()
	for i := 0; i < *agents; i++ {
		emails[i] = fmt.Sprintf("agent-%d@load.test", i)
		if _, err := engine.Register(ctx, agentauth.RegisterRequest{
			FirstName: "Load",
			LastName:  fmt.Sprintf("Agent%d", i),
			Email:     emails[i],
			Phone:     fmt.Sprintf("+1555%07d", i),
			Password:  seedPassword,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.Login(ctx, emails[i], seedPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = res.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, tokens, *ops, *concurrency)
	otpStats, winners := runOTPPhase(ctx, engine, mailer, emails, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("otp", otpStats)
	fmt.Printf("otp: agents=%d single-winner confirmations=%d\n", len(emails), winners)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: otp_issued=%d otp_verified=%d otp_rejected_or_expired=%d\n",
		snap.Counters[agentauth.MetricOTPIssued],
		snap.Counters[agentauth.MetricOTPVerified],
		snap.Counters[agentauth.MetricOTPExpired]+snap.Counters[agentauth.MetricOTPRejected],
	)
}

func runValidatePhase(ctx context.Context, engine *agentauth.Engine, tokens []string, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(tokens))
				t0 := time.Now()
				_, err := engine.ValidateToken(ctx, tokens[idx])
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

// runOTPPhase issues one passcode per agent, then races two confirmations of the same
// code. Exactly one of each pair should succeed.
func runOTPPhase(ctx context.Context, engine *agentauth.Engine, mailer *codeMailer, emails []string, concurrency int) (phaseStats, int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		winners   int64
		latencies = make([]time.Duration, 0, len(emails))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(emails) {
					return
				}
				email := emails[i]
				t0 := time.Now()
				if err := engine.RequestPasswordReset(ctx, email); err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				code := mailer.code(email)

				var (
					race sync.WaitGroup
					won  int64
				)
				for k := 0; k < 2; k++ {
					race.Add(1)
					go func() {
						defer race.Done()
						if engine.ConfirmOTP(ctx, email, code) == nil {
							atomic.AddInt64(&won, 1)
						}
					}()
				}
				race.Wait()
				d := time.Since(t0)

				if won == 1 {
					atomic.AddInt64(&winners, 1)
				} else {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), winners
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
		return phaseStats{total: total, failures: failures}
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
