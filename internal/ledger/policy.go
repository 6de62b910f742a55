package ledger

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides what List does with an id that is already in the catalog.
type DuplicatePolicy int

const (
	DuplicateOverwrite DuplicatePolicy = iota
	DuplicateReject
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return DuplicateOverwrite, nil
	case "reject":
		return DuplicateReject, nil
	}
	return DuplicateOverwrite, fmt.Errorf("unknown duplicate policy %q", s)
}

func (p DuplicatePolicy) String() string {
	if p == DuplicateReject {
		return "reject"
	}
	return "overwrite"
}

// StockPolicy decides how Buy treats Item.Stock.
type StockPolicy int

const (
	// StockIgnore keeps stock as listed.
	StockIgnore StockPolicy = iota
	// StockDecrement lowers stock on each purchase, never below zero.
	StockDecrement
	// StockEnforce lowers stock and rejects purchases at zero.
	StockEnforce
)

func ParseStockPolicy(s string) (StockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return StockIgnore, nil
	case "decrement":
		return StockDecrement, nil
	case "enforce":
		return StockEnforce, nil
	}
	return StockIgnore, fmt.Errorf("unknown stock policy %q", s)
}

func (p StockPolicy) String() string {
	switch p {
	case StockDecrement:
		return "decrement"
	case StockEnforce:
		return "enforce"
	}
	return "ignore"
}
