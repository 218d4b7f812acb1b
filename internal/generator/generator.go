// Package generator produces seeded synthetic datasets of customers,
// transactions and security alerts for load runs.
//
// The same Config always yields the same facts in the same order:
// customers 1..C, then transactions 1..T, then the alerts.
package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
)

// Defaults used by the CLI.
const (
	DefaultCustomers    = 10_000
	DefaultTransactions = 100_000
	DefaultLocations    = 1_000
	DefaultSeed         = 0
)

// inactiveRate is the probability that a customer is inactive, in percent.
const inactiveRate = 5

// Amounts are drawn in cents from [minCents, maxCents).
const (
	minCents = 100
	maxCents = 5_000_000
)

var riskLevels = []ir.RiskLevel{ir.RiskLow, ir.RiskMedium, ir.RiskHigh}

// Config sizes a dataset.
type Config struct {
	Customers    int    `json:"customers"`
	Transactions int    `json:"transactions"`
	Locations    int    `json:"locations"`
	Seed         uint64 `json:"seed"`
}

// DefaultConfig returns the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Customers:    DefaultCustomers,
		Transactions: DefaultTransactions,
		Locations:    DefaultLocations,
		Seed:         DefaultSeed,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	if c.Customers < 1 {
		errs = append(errs, fmt.Errorf("customers must be at least 1, got %d", c.Customers))
	}
	if c.Transactions < 0 {
		errs = append(errs, fmt.Errorf("transactions must not be negative, got %d", c.Transactions))
	}
	if c.Locations < 1 {
		errs = append(errs, fmt.Errorf("locations must be at least 1, got %d", c.Locations))
	}
	return errors.Join(errs...)
}

// AlertCount is the number of alerted locations: a quarter of all
// locations, at least one.
func (c Config) AlertCount() int {
	return max(1, c.Locations/4)
}

// Total is the number of facts Generate emits.
func (c Config) Total() int {
	return c.Customers + c.Transactions + c.AlertCount()
}

// Location returns the name of location i.
func Location(i int) string {
	return "location_" + strconv.Itoa(i)
}

// Generate streams the dataset to emit. It stops at the first error emit
// returns and passes it through unchanged.
func Generate(cfg Config, emit func(ir.Fact) error) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	for i := 1; i <= cfg.Customers; i++ {
		c := &ir.Customer{
			ID:        int64(i),
			RiskLevel: riskLevels[rng.IntN(len(riskLevels))],
			Status:    ir.StatusActive,
		}
		if rng.IntN(100) < inactiveRate {
			c.Status = ir.StatusInactive
		}
		if err := emit(c); err != nil {
			return err
		}
	}

	for i := 1; i <= cfg.Transactions; i++ {
		t := &ir.Transaction{
			ID:         int64(i),
			CustomerID: int64(rng.IntN(cfg.Customers) + 1),
			Location:   Location(rng.IntN(cfg.Locations)),
		}
		cents := minCents + rng.Int64N(maxCents-minCents)
		t.Amount.SetFinite(cents, -2)
		if err := emit(t); err != nil {
			return err
		}
	}

	locations := make([]string, cfg.Locations)
	for i := range locations {
		locations[i] = Location(i)
	}
	rng.Shuffle(len(locations), func(i, j int) {
		locations[i], locations[j] = locations[j], locations[i]
	})
	for _, loc := range locations[:cfg.AlertCount()] {
		a := &ir.SecurityAlert{Location: loc, Severity: rng.Int64N(5) + 1}
		if err := emit(a); err != nil {
			return err
		}
	}
	return nil
}

// Facts collects the whole dataset in memory.
func Facts(cfg Config) ([]ir.Fact, error) {
	out := make([]ir.Fact, 0, max(cfg.Total(), 0))
	err := Generate(cfg, func(f ir.Fact) error {
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// amountBounds returns the inclusive lower and exclusive upper bound of
// generated amounts.
func amountBounds() (lo, hi *apd.Decimal) {
	return apd.New(minCents, -2), apd.New(maxCents, -2)
}
