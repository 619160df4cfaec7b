// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile computes and applies the difference between the
// desired state and a backend's actual state. The engine is generic:
// D is the backend's desired record (usually directory.User, but a
// backend may derive its own), R is the backend's remote record, and a
// key function projects remote records into the desired map's key
// space.
//
// Membership alone decides the partition. Whether a matched record
// differs field by field is never inspected; updates rewrite the full
// desired record every run.
package reconcile

import (
	"sort"
)

// Pending is a desired record with no remote counterpart.
type Pending[D any] struct {
	Key     string
	Desired D
}

// Match pairs a desired record with its remote counterpart.
type Match[D, R any] struct {
	Key     string
	Desired D
	Actual  R
}

// Stale is a remote record with no desired counterpart.
type Stale[R any] struct {
	Key    string
	Actual R
}

// Plan is the partition of desired ∪ actual into the three operation
// buckets. Buckets are pairwise disjoint and sorted by key.
type Plan[D, R any] struct {
	Creates []Pending[D]
	Updates []Match[D, R]
	Deletes []Stale[R]
}

// Compute partitions desired and actual records by key membership.
// Every desired key lands in Creates or Updates; every remote record
// lands in Updates or Deletes. When two remote records share a key,
// the first one is matched and later ones land in Deletes.
func Compute[D, R any](desired map[string]D, actual []R, key func(R) string) Plan[D, R] {
	var plan Plan[D, R]

	seen := make(map[string]bool, len(actual))
	for _, remote := range actual {
		remoteKey := key(remote)
		desiredRecord, wanted := desired[remoteKey]
		if wanted && !seen[remoteKey] {
			plan.Updates = append(plan.Updates, Match[D, R]{
				Key:     remoteKey,
				Desired: desiredRecord,
				Actual:  remote,
			})
		} else {
			plan.Deletes = append(plan.Deletes, Stale[R]{Key: remoteKey, Actual: remote})
		}
		seen[remoteKey] = true
	}

	for desiredKey, desiredRecord := range desired {
		if !seen[desiredKey] {
			plan.Creates = append(plan.Creates, Pending[D]{Key: desiredKey, Desired: desiredRecord})
		}
	}

	sort.Slice(plan.Creates, func(i, j int) bool { return plan.Creates[i].Key < plan.Creates[j].Key })
	sort.Slice(plan.Updates, func(i, j int) bool { return plan.Updates[i].Key < plan.Updates[j].Key })
	sort.SliceStable(plan.Deletes, func(i, j int) bool { return plan.Deletes[i].Key < plan.Deletes[j].Key })

	return plan
}

// Summary is the printable form of a plan.
type Summary struct {
	// Backend is filled by the provider that produced the plan.
	Backend string
	Creates []string
	Updates []string
	Deletes []string
	// NewRoles lists catalog role names that would be created; empty
	// for backends without a role catalog.
	NewRoles []string
}

// Summary lists the keys per bucket.
func (p Plan[D, R]) Summary() *Summary {
	summary := &Summary{
		Creates: make([]string, 0, len(p.Creates)),
		Updates: make([]string, 0, len(p.Updates)),
		Deletes: make([]string, 0, len(p.Deletes)),
	}
	for _, pending := range p.Creates {
		summary.Creates = append(summary.Creates, pending.Key)
	}
	for _, match := range p.Updates {
		summary.Updates = append(summary.Updates, match.Key)
	}
	for _, stale := range p.Deletes {
		summary.Deletes = append(summary.Deletes, stale.Key)
	}
	return summary
}

// Empty reports whether the plan would change nothing.
func (s *Summary) Empty() bool {
	return len(s.Creates) == 0 && len(s.Updates) == 0 && len(s.Deletes) == 0 && len(s.NewRoles) == 0
}
