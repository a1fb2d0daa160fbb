// Package models provides domain models for the signal engine.
package models

import (
	"time"
)

// Bar represents OHLCV data for a time period.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Series is an ordered, index-aligned sequence of bars.
type Series []Bar

// Closes extracts close prices.
func (s Series) Closes() []float64 {
	prices := make([]float64, len(s))
	for i, b := range s {
		prices[i] = b.Close
	}
	return prices
}

// Highs extracts high prices.
func (s Series) Highs() []float64 {
	prices := make([]float64, len(s))
	for i, b := range s {
		prices[i] = b.High
	}
	return prices
}

// Lows extracts low prices.
func (s Series) Lows() []float64 {
	prices := make([]float64, len(s))
	for i, b := range s {
		prices[i] = b.Low
	}
	return prices
}

// Last returns the most recent bar. The series must not be empty.
func (s Series) Last() Bar {
	return s[len(s)-1]
}

// Tail returns at most the last n bars. The returned series shares storage
// with s.
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
