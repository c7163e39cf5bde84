package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/db"
	"github.com/hackgods/counsel-coordinator/internal/logs"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	ConfirmRatio   float64
	CancelRatio    float64
	TransferRatio  float64
	ReadRatio      float64
	RequesterLimit int
	Date           string
	IntervalBuffer time.Duration
}

type slotRef struct {
	ProviderID uuid.UUID
	Time       string
}

type DataPool struct {
	Requesters   []uuid.UUID
	Providers    []uuid.UUID
	Slots        []slotRef
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		i := len(latencies) * p / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return latencies[i]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking  OperationMetrics
	Confirm  OperationMetrics
	Cancel   OperationMetrics
	Transfer OperationMetrics
	Read     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *slog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	logger := logs.New(baseCfg, "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"date", cfg.Date, "duration", cfg.Duration, "workers", cfg.Workers,
		"booking", cfg.BookingRatio, "confirm", cfg.ConfirmRatio, "cancel", cfg.CancelRatio,
		"transfer", cfg.TransferRatio, "read", cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg)
	if err != nil {
		logger.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "err", err)
		os.Exit(1)
	}
	logger.Info("data pool loaded",
		"requesters", len(dataPool.Requesters), "providers", len(dataPool.Providers), "slots", len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()

	violations, err := verify(context.Background(), pgPool, cfg)
	if err != nil {
		logger.Error("verify", "err", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Println("  VIOLATION:", v)
		}
		os.Exit(2)
	}
	fmt.Println("All invariants hold.")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio:   getFloat("SIM_CONFIRM_RATIO", 0.25),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.05),
		TransferRatio:  getFloat("SIM_TRANSFER_RATIO", 0.05),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.25),
		RequesterLimit: getInt("SIM_REQUESTER_LIMIT", 4000),
		Date:           getEnv("SIM_DATE", time.Now().In(base.Location).AddDate(0, 0, 1).Format(appointment.DateLayout)),
		IntervalBuffer: base.IntervalBuffer,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.TransferRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.TransferRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return appointment.ValidateDate(cfg.Date)
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM requesters LIMIT $1`, cfg.RequesterLimit)
	if err != nil {
		return nil, fmt.Errorf("load requesters: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Requesters = append(dataPool.Requesters, id)
	}
	rows.Close()

	// Published slots for the simulated day
	rows, err = pool.Query(ctx, `
		SELECT l.provider_id, s->>'time'
		FROM slot_ledgers l, jsonb_array_elements(l.slots) s
		WHERE l.date = $1 AND NOT (s->>'booked')::boolean
	`, cfg.Date)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	seen := make(map[uuid.UUID]bool)
	for rows.Next() {
		var ref slotRef
		if err := rows.Scan(&ref.ProviderID, &ref.Time); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, ref)
		if !seen[ref.ProviderID] {
			seen[ref.ProviderID] = true
			dataPool.Providers = append(dataPool.Providers, ref.ProviderID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Requesters) == 0 {
		return nil, fmt.Errorf("no requesters loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots published for %s", cfg.Date)
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		i := i
		g.Go(func() error {
			s.worker(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio:
			s.doAction(ctx, rng, "confirm", &s.metrics.Confirm)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
			s.doAction(ctx, rng, "cancel", &s.metrics.Cancel)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio+c.TransferRatio:
			s.doTransfer(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	requesterID := s.pool.Requesters[rng.Intn(len(s.pool.Requesters))]

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", map[string]string{
		"requester_id": requesterID.String(),
		"provider_id":  slot.ProviderID.String(),
		"date":         s.config.Date,
		"time":         slot.Time,
		"reason":       "simulated load",
	}, &created)
	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, status, err)
}

func (s *Simulator) doAction(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", apptID, action), nil, nil)
	om.Record(latency, status, err)
}

// doTransfer runs the whole two-party handshake against a random provider.
func (s *Simulator) doTransfer(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok || len(s.pool.Providers) < 2 {
		return
	}
	target := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	base := "/appointments/" + apptID.String() + "/transfer"

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPost, base, map[string]string{"target_provider_id": target.String()}, nil)
	if err == nil && status == http.StatusOK {
		status, _, err = s.call(ctx, http.MethodPost, base+"/target-response", map[string]bool{"accept": true}, nil)
	}
	if err == nil && status == http.StatusOK {
		status, _, err = s.call(ctx, http.MethodPost, base+"/requester-response", map[string]bool{"accept": true}, nil)
	}
	s.metrics.Transfer.Record(time.Since(start), status, err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	var path string
	if apptID, ok := s.pool.RandomAppointment(rng); ok && rng.Intn(2) == 0 {
		path = "/appointments/" + apptID.String()
	} else {
		requesterID := s.pool.Requesters[rng.Intn(len(s.pool.Requesters))]
		path = fmt.Sprintf("/appointments?requester_id=%s&limit=20&offset=0", requesterID)
	}
	status, latency, err := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.Read.Record(latency, status, err)
}

func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

// verify checks the stored state for the simulated day: no two confirmed
// sessions of a provider closer than the buffer, no requester with two
// active appointments, and every active appointment held on the ledger.
func verify(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) ([]string, error) {
	var violations []string

	rows, err := pool.Query(ctx, `
		SELECT a.provider_id, a.time, b.time
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id AND a.date = b.date AND a.id < b.id
		WHERE a.date = $1 AND a.status = 'confirmed' AND b.status = 'confirmed'
	`, cfg.Date)
	if err != nil {
		return nil, fmt.Errorf("interval check: %w", err)
	}
	for rows.Next() {
		var providerID uuid.UUID
		var t1, t2 string
		if err := rows.Scan(&providerID, &t1, &t2); err != nil {
			rows.Close()
			return nil, err
		}
		m1, err1 := appointment.MinutesSinceMidnight(t1)
		m2, err2 := appointment.MinutesSinceMidnight(t2)
		if err1 != nil || err2 != nil {
			violations = append(violations, fmt.Sprintf("provider %s has unparseable times %s/%s", providerID, t1, t2))
			continue
		}
		gap := m1 - m2
		if gap < 0 {
			gap = -gap
		}
		if time.Duration(gap)*time.Minute < cfg.IntervalBuffer {
			violations = append(violations, fmt.Sprintf("provider %s confirmed at %s and %s", providerID, t1, t2))
		}
	}
	rows.Close()

	var doubled int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT requester_id FROM appointments
			WHERE date = $1 AND status IN ('pending', 'confirmed')
			GROUP BY requester_id HAVING count(*) > 1
		) d
	`, cfg.Date).Scan(&doubled)
	if err != nil {
		return nil, fmt.Errorf("daily limit check: %w", err)
	}
	if doubled > 0 {
		violations = append(violations, fmt.Sprintf("%d requesters hold more than one active appointment", doubled))
	}

	var unheld int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments a
		WHERE a.date = $1 AND a.status IN ('pending', 'confirmed')
		  AND NOT EXISTS (
			SELECT 1 FROM slot_ledgers l, jsonb_array_elements(l.slots) s
			WHERE l.provider_id = a.provider_id AND l.date = a.date
			  AND s->>'time' = a.time AND (s->>'booked')::boolean
			  AND s->>'appointment_id' = a.id::text
		  )
	`, cfg.Date).Scan(&unheld)
	if err != nil {
		return nil, fmt.Errorf("ledger check: %w", err)
	}
	if unheld > 0 {
		violations = append(violations, fmt.Sprintf("%d active appointments not held on the ledger", unheld))
	}

	return violations, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Date: %s\n", s.config.Date)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Transfer", &s.metrics.Transfer)
	printOperationReport("Read", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
