package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/refledger/internal/api"
	"github.com/punchamoorthee/refledger/internal/domain"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	adminID     int64
	racers      int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Approvals applied
	success201    uint64 // Deposits created
	fail400       uint64 // already_processed
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "deposits", "Workload type: deposits | approval-race")
	flag.IntVar(&accounts, "accounts", 1000, "Seeded account IDs to draw from (1..n)")
	flag.Int64Var(&adminID, "admin", 1, "Account ID used for admin tokens")
	flag.IntVar(&racers, "racers", 8, "Concurrent approvals per deposit in approval-race")
}

type client struct {
	http   *http.Client
	secret string
}

func (c *client) do(method, path string, p domain.Principal, payload interface{}) (int, []byte) {
	tok, err := api.SignToken(c.secret, p.AccountID, p.Role, time.Hour)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(method, targetURL+path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func main() {
	flag.Parse()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required to mint benchmark tokens")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	c := &client{http: &http.Client{Timeout: 5 * time.Second}, secret: secret}
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, c, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, c *client, start time.Time) {
	defer wg.Done()
	admin := domain.Principal{AccountID: adminID, Role: domain.RoleAdmin}

	for time.Since(start) < duration {
		user := domain.Principal{AccountID: int64(rand.Intn(accounts) + 1), Role: domain.RoleUser}
		amount := fmt.Sprintf("%d.%02d", rand.Intn(500)+1, rand.Intn(100))

		status, body := c.do(http.MethodPost, "/api/v1/transactions/deposits", user, map[string]string{"amount": amount})
		record(status)
		if status != http.StatusCreated || workload != "approval-race" {
			continue
		}

		var created domain.Request
		if err := json.Unmarshal(body, &created); err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		// Every racer tries to approve; exactly one should win.
		var race sync.WaitGroup
		race.Add(racers)
		for i := 0; i < racers; i++ {
			go func() {
				defer race.Done()
				status, _ := c.do(http.MethodPut, fmt.Sprintf("/api/v1/transactions/deposits/%d", created.ID), admin,
					map[string]string{"status": "approved"})
				record(status)
			}()
		}
		race.Wait()
	}
}

func record(status int) {
	if status == 0 {
		atomic.AddUint64(&failOther, 1)
		return
	}
	atomic.AddUint64(&totalRequests, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddUint64(&success201, 1)
	case http.StatusOK:
		atomic.AddUint64(&success200, 1)
	case http.StatusBadRequest:
		atomic.AddUint64(&fail400, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f400 := atomic.LoadUint64(&fail400)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"deposits_created":  s201,
		"approvals_applied": s200,
		"already_processed": f400,
		"errors":            fErr,
	}
	if workload == "approval-race" && s201 > 0 {
		// Each created deposit must be approved exactly once.
		results["double_approvals"] = int64(s200) - int64(s201)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
