package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// MergePolicy decides what happens when a step returns a field that is
// already in the bag.
type MergePolicy int

const (
	// LastWriteWins overwrites the existing value
	LastWriteWins MergePolicy = iota

	// FirstWriteWins keeps the existing value
	FirstWriteWins

	// FailOnCollision fails the step and merges none of its output
	FailOnCollision
)

func (p MergePolicy) String() string {
	switch p {
	case LastWriteWins:
		return "last_write_wins"
	case FirstWriteWins:
		return "first_write_wins"
	case FailOnCollision:
		return "fail_on_collision"
	}
	return "unknown"
}

// ParseMergePolicy parses a policy name; empty means LastWriteWins.
func ParseMergePolicy(s string) (MergePolicy, bool) {
	switch s {
	case "", "last_write_wins":
		return LastWriteWins, true
	case "first_write_wins":
		return FirstWriteWins, true
	case "fail_on_collision":
		return FailOnCollision, true
	}
	return LastWriteWins, false
}

// merge folds out into bag according to policy.
func merge(bag, out article.FieldBag, policy MergePolicy) error {
	if policy == FailOnCollision {
		var collisions []string
		for k := range out {
			if bag.Has(k) {
				collisions = append(collisions, k)
			}
		}
		if len(collisions) > 0 {
			sort.Strings(collisions)
			return fmt.Errorf("%w: [%s]", pyerrors.ErrFieldCollision, strings.Join(collisions, " "))
		}
	}

	for k, v := range out {
		if policy == FirstWriteWins && bag.Has(k) {
			continue
		}
		bag[k] = v
	}
	return nil
}

// undeclared returns the keys of out that provides does not list, sorted.
func undeclared(out article.FieldBag, provides []string) []string {
	declared := make(map[string]struct{}, len(provides))
	for _, p := range provides {
		declared[p] = struct{}{}
	}
	var extra []string
	for k := range out {
		if _, ok := declared[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}
