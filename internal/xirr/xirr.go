// Package xirr solves for the annualized internal rate of return of a
// dated cash flow series.
package xirr

import (
	"fmt"
	"math"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

const (
	// Rates are searched in (MinRate, MaxRate).
	MinRate = -0.999
	MaxRate = 10.0

	initialGuess   = 0.1
	maxNewton      = 100
	maxBisection   = 200
	residualTol    = 1e-6
	stepTol        = 1e-9
	bracketWidth   = 1e-9
	bracketSamples = 200
	daysPerYear    = 365.0
)

// Flow is signed from the investor's side: money in is negative, money
// returned (and the terminal value) positive.
type Flow struct {
	Date   time.Time
	Amount float64
}

type solver struct {
	years []float64
	amts  []float64
	scale float64
}

// Solve returns r with Σ amount / (1+r)^(days/365) = 0, where days counts
// from the earliest flow. Anything that does not converge inside the rate
// domain is domain.ErrIndeterminate; a non-converged rate is never returned.
func Solve(flows []Flow) (float64, error) {
	s, err := prepare(flows)
	if err != nil {
		return 0, err
	}

	if r, ok := s.newton(); ok {
		return r, nil
	}
	if r, ok := s.bisect(); ok {
		return r, nil
	}
	return 0, fmt.Errorf("xirr.Solve: %w", domain.ErrIndeterminate)
}

func prepare(flows []Flow) (*solver, error) {
	if len(flows) < 2 {
		return nil, fmt.Errorf("xirr.Solve: %d flows: %w", len(flows), domain.ErrIndeterminate)
	}

	first := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(first) {
			first = f.Date
		}
	}

	s := &solver{
		years: make([]float64, len(flows)),
		amts:  make([]float64, len(flows)),
	}
	var pos, neg, spread bool
	for i, f := range flows {
		if math.IsNaN(f.Amount) || math.IsInf(f.Amount, 0) {
			return nil, fmt.Errorf("xirr.Solve: non-finite flow on %s: %w", domain.FormatDate(f.Date), domain.ErrIndeterminate)
		}
		s.years[i] = f.Date.Sub(first).Hours() / 24 / daysPerYear
		s.amts[i] = f.Amount
		s.scale += math.Abs(f.Amount)
		switch {
		case f.Amount > 0:
			pos = true
		case f.Amount < 0:
			neg = true
		}
		if s.years[i] != 0 {
			spread = true
		}
	}

	switch {
	case s.scale == 0:
		return nil, fmt.Errorf("xirr.Solve: all flows zero: %w", domain.ErrIndeterminate)
	case !pos || !neg:
		return nil, fmt.Errorf("xirr.Solve: flows never change sign: %w", domain.ErrIndeterminate)
	case !spread:
		return nil, fmt.Errorf("xirr.Solve: all flows on one date: %w", domain.ErrIndeterminate)
	}
	return s, nil
}

func (s *solver) npv(r float64) float64 {
	var v float64
	for i, a := range s.amts {
		v += a / math.Pow(1+r, s.years[i])
	}
	return v
}

func (s *solver) derivative(r float64) float64 {
	var d float64
	for i, a := range s.amts {
		d -= s.years[i] * a / math.Pow(1+r, s.years[i]+1)
	}
	return d
}

func (s *solver) converged(r float64) bool {
	v := s.npv(r)
	return !math.IsNaN(v) && math.Abs(v)/s.scale <= residualTol
}

func (s *solver) newton() (float64, bool) {
	r := initialGuess
	for range maxNewton {
		v := s.npv(r)
		d := s.derivative(r)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) || math.IsNaN(v) {
			return 0, false
		}

		next := r - v/d
		if next <= MinRate || next >= MaxRate || math.IsNaN(next) {
			return 0, false
		}
		if math.Abs(next-r) < stepTol && s.converged(next) {
			return next, true
		}
		r = next
	}
	return 0, false
}

// bisect scans the domain for a sign change of the NPV and narrows the
// first bracket found.
func (s *solver) bisect() (float64, bool) {
	lo, hi, ok := s.bracket()
	if !ok {
		return 0, false
	}

	flo := s.npv(lo)
	for range maxBisection {
		mid := (lo + hi) / 2
		fmid := s.npv(mid)
		if fmid == 0 {
			return mid, true
		}
		if (fmid < 0) == (flo < 0) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
		if hi-lo < bracketWidth {
			break
		}
	}

	mid := (lo + hi) / 2
	if hi-lo < bracketWidth && s.converged(mid) {
		return mid, true
	}
	return 0, false
}

func (s *solver) bracket() (float64, float64, bool) {
	step := (MaxRate - MinRate) / bracketSamples
	lo := MinRate + step/2
	flo := s.npv(lo)
	for i := 1; i < bracketSamples; i++ {
		hi := lo + step
		fhi := s.npv(hi)
		if !math.IsNaN(flo) && !math.IsNaN(fhi) && (flo < 0) != (fhi < 0) {
			return lo, hi, true
		}
		lo, flo = hi, fhi
	}
	return 0, 0, false
}
