package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/db"
	"github.com/hackgods/hospital-appointments/internal/observability"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ReadRatio    float64
	// HotDays is how many upcoming dates bookings concentrate on; fewer
	// days mean more contention per slot.
	HotDays      int
	PatientLimit int
	PostgresDSN  string
	Location     *time.Location
}

type DataPool struct {
	Doctors  []clinic.Doctor
	Patients []string // human-readable PAT- ids
	Dates    []string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	if len(latencies) > 0 {
		p50Idx := len(latencies) * 50 / 100
		if p50Idx >= len(latencies) {
			p50Idx = len(latencies) - 1
		}
		p50 = latencies[p50Idx]

		p95Idx := len(latencies) * 95 / 100
		if p95Idx >= len(latencies) {
			p95Idx = len(latencies) - 1
		}
		p95 = latencies[p95Idx]
	}

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Redirected    int64
	NextAvailable OperationMetrics
	OpenSlots     OperationMetrics
	History       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := observability.InitLogger("simulate", baseCfg.Env)

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("read", cfg.ReadRatio).
		Int("hot_days", cfg.HotDays).
		Msg("simulator starting")

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 2, 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Strs("dates", dataPool.Dates).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()

	dupes, err := countDoubleBookings(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("integrity check")
	}
	if dupes > 0 {
		logger.Fatal().Int64("slots", dupes).Msg("double-booked slots found")
	}
	logger.Info().Msg("integrity check passed: no slot holds more than one open appointment")
}

func loadConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		HotDays:      getInt("SIM_HOT_DAYS", 3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		PostgresDSN:  baseCfg.PostgresDSN,
		Location:     baseCfg.Location(),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotDays <= 0 {
		return fmt.Errorf("SIM_HOT_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	doctors, err := clinic.NewPgStore(pool, nil).ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for _, d := range doctors {
		if d.IsActive() && len(d.TimeSlots) > 0 {
			dataPool.Doctors = append(dataPool.Doctors, d)
		}
	}

	rows, err := pool.Query(ctx, `
		SELECT patient_id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	today := calendar.Today(calendar.SystemClock{Location: cfg.Location})
	for i := 1; i <= cfg.HotDays; i++ {
		d, err := calendar.AddDays(today, i)
		if err != nil {
			return nil, err
		}
		dataPool.Dates = append(dataPool.Dates, d)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no active doctors loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
				continue
			}
			switch rng.Intn(3) {
			case 0:
				s.doNextAvailable(ctx, rng)
			case 1:
				s.doOpenSlots(ctx, rng)
			case 2:
				s.doHistory(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomDoctor(rng *rand.Rand) clinic.Doctor {
	return s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
}

// doBooking requests a random slot of a random doctor on one of the hot
// dates; off days and taken slots exercise the rejection and redirect
// paths.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.randomDoctor(rng)
	slot := doctor.TimeSlots[rng.Intn(len(doctor.TimeSlots))]

	body, _ := json.Marshal(map[string]string{
		"doctorId":  doctor.ID.String(),
		"date":      s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"time":      slot.StartTime,
		"patientId": s.pool.Patients[rng.Intn(len(s.pool.Patients))],
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments/book", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var booked struct {
				Redirected bool `json:"redirected"`
			}
			if json.NewDecoder(resp.Body).Decode(&booked) == nil && booked.Redirected {
				atomic.AddInt64(&s.metrics.Redirected, 1)
			}
		case http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadRequest:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doNextAvailable(ctx context.Context, rng *rand.Rand) {
	doctor := s.randomDoctor(rng)
	s.get(ctx, &s.metrics.NextAvailable, fmt.Sprintf("%s/doctors/%s/next-available", s.config.APIBaseURL, doctor.ID), http.StatusUnprocessableEntity)
}

func (s *Simulator) doOpenSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.randomDoctor(rng)
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	s.get(ctx, &s.metrics.OpenSlots, fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, doctor.ID, date), 0)
}

func (s *Simulator) doHistory(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.get(ctx, &s.metrics.History, fmt.Sprintf("%s/patients/%s/appointments?upcoming=true", s.config.APIBaseURL, url.PathEscape(patient)), 0)
}

// get records a GET; expected is a non-200 status that still counts as a
// legitimate answer rather than an error.
func (s *Simulator) get(ctx context.Context, om *OperationMetrics, target string, expected int) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = expected != 0 && resp.StatusCode == expected
	}

	om.Record(latency, success, conflict)
}

func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT doctor_id, date, time
			FROM appointments
			WHERE status IN ('Booked', 'Attended')
			GROUP BY doctor_id, date, time
			HAVING COUNT(*) > 1
		) d
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot dates: %s\n", strings.Join(s.pool.Dates, ", "))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	if booked := atomic.LoadInt64(&s.metrics.Booking.Success); booked > 0 {
		redirected := atomic.LoadInt64(&s.metrics.Redirected)
		fmt.Printf("  Redirected to next slot: %d (%.1f%% of bookings)\n\n", redirected, float64(redirected)/float64(booked)*100)
	}
	printOperationReport("Next available", &s.metrics.NextAvailable)
	printOperationReport("Open slots", &s.metrics.OpenSlots)
	printOperationReport("Patient history", &s.metrics.History)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
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

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
