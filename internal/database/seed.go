package database

import (
	"context"
	"fmt"
	"os"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RateSeed is the on-disk form of a rate schedule:
//
//	rates:
//	  - id: firm-a-2023
//	    grade: A
//	    hourly_rate: "450.00"
//	    effective_from: 2023-01-01
type RateSeed struct {
	Rates []SeedRate `yaml:"rates"`
}

type SeedRate struct {
	ID            string `yaml:"id"`
	CaseRef       string `yaml:"case_ref"`
	Grade         string `yaml:"grade"`
	FeeEarnerID   string `yaml:"fee_earner_id"`
	HourlyRate    string `yaml:"hourly_rate"`
	EffectiveFrom string `yaml:"effective_from"`
	EffectiveTo   string `yaml:"effective_to"`
}

// LoadRateSeed reads and validates a rate seed file
func LoadRateSeed(path string) ([]costs.RateEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate seed: %w", err)
	}
	return ParseRateSeed(data)
}

func ParseRateSeed(data []byte) ([]costs.RateEntry, error) {
	var seed RateSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse rate seed: %w", err)
	}

	entries := make([]costs.RateEntry, 0, len(seed.Rates))
	for i, r := range seed.Rates {
		e, err := r.entry()
		if err != nil {
			return nil, fmt.Errorf("rate seed entry %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}

	// Validates each entry the same way the schedule will
	if _, err := costs.NewRateSchedule(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r SeedRate) entry() (costs.RateEntry, error) {
	grade, err := costs.ParseGrade(r.Grade)
	if err != nil {
		return costs.RateEntry{}, err
	}
	rate, err := decimal.NewFromString(r.HourlyRate)
	if err != nil {
		return costs.RateEntry{}, fmt.Errorf("invalid hourly_rate %q: %w", r.HourlyRate, err)
	}
	from, err := costs.ParseDate(r.EffectiveFrom)
	if err != nil {
		return costs.RateEntry{}, fmt.Errorf("invalid effective_from: %w", err)
	}

	e := costs.RateEntry{
		ID:            r.ID,
		CaseID:        r.CaseRef,
		Grade:         grade,
		FeeEarnerID:   r.FeeEarnerID,
		HourlyRate:    rate,
		EffectiveFrom: from,
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("seed-%s-%s-%s-%s", r.CaseRef, grade, r.FeeEarnerID, from.Format("20060102"))
	}
	if r.EffectiveTo != "" {
		to, err := costs.ParseDate(r.EffectiveTo)
		if err != nil {
			return costs.RateEntry{}, fmt.Errorf("invalid effective_to: %w", err)
		}
		e.EffectiveTo = &to
	}
	return e, nil
}

// SeedRates loads a seed file into the store. Entries already present are
// left alone so seeding can run on every start.
func SeedRates(ctx context.Context, store *Store, path string) (int64, error) {
	entries, err := LoadRateSeed(path)
	if err != nil {
		return 0, err
	}
	n, _, err := store.AddRateEntries(ctx, entries)
	return n, err
}
