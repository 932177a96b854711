// Package reconcile computes the store mutations needed to make stored
// articles match the articles on disk.
package reconcile

import (
	"sort"

	"github.com/starford/mdblog/internal/blogkey"
	"github.com/starford/mdblog/internal/models"
)

// Reason explains why a key is scheduled for removal.
type Reason string

const (
	ReasonInvalid   Reason = "invalid"
	ReasonDuplicate Reason = "duplicate"
	ReasonOrphan    Reason = "orphan"
	ReasonStale     Reason = "stale"
)

// Removal is a store key to delete.
type Removal struct {
	Key    string
	Reason Reason
}

// Plan is the outcome of Compute. Removals and inserts are independent and
// may be applied in any order.
type Plan struct {
	Remove    []Removal
	Insert    []blogkey.Key
	Unchanged int
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Remove) == 0 && len(p.Insert) == 0
}

// Inventory maps each on-disk identity to its file version.
type Inventory map[models.Identity]int64

// Compute diffs the on-disk inventory against the raw store keys.
//
// Every key that does not decode is removed. Valid keys are collapsed per
// identity keeping the highest version; the rest are duplicates. A survivor
// whose identity is gone from disk is an orphan, one whose version differs is
// stale. Identities on disk without an up-to-date survivor are inserted.
func Compute(disk Inventory, keys []string) Plan {
	var plan Plan

	survivors := make(map[models.Identity]blogkey.Key, len(keys))
	survivorKeys := make(map[models.Identity]string, len(keys))

	for _, raw := range keys {
		k, ok := blogkey.Decode(raw)
		if !ok {
			plan.Remove = append(plan.Remove, Removal{Key: raw, Reason: ReasonInvalid})
			continue
		}
		id := k.Identity()
		cur, seen := survivors[id]
		if !seen {
			survivors[id] = k
			survivorKeys[id] = raw
			continue
		}
		curRaw := survivorKeys[id]
		if raw == curRaw {
			continue
		}
		if k.Version > cur.Version || (k.Version == cur.Version && raw < curRaw) {
			plan.Remove = append(plan.Remove, Removal{Key: curRaw, Reason: ReasonDuplicate})
			survivors[id] = k
			survivorKeys[id] = raw
		} else {
			plan.Remove = append(plan.Remove, Removal{Key: raw, Reason: ReasonDuplicate})
		}
	}

	current := make(map[models.Identity]struct{}, len(survivors))
	for id, k := range survivors {
		version, onDisk := disk[id]
		switch {
		case !onDisk:
			plan.Remove = append(plan.Remove, Removal{Key: survivorKeys[id], Reason: ReasonOrphan})
		case version != k.Version:
			plan.Remove = append(plan.Remove, Removal{Key: survivorKeys[id], Reason: ReasonStale})
		default:
			current[id] = struct{}{}
		}
	}
	plan.Unchanged = len(current)

	for id, version := range disk {
		if _, ok := current[id]; ok {
			continue
		}
		plan.Insert = append(plan.Insert, blogkey.Key{Category: id.Category, Slug: id.Slug, Version: version})
	}

	sort.Slice(plan.Remove, func(i, j int) bool { return plan.Remove[i].Key < plan.Remove[j].Key })
	sort.Slice(plan.Insert, func(i, j int) bool { return plan.Insert[i].String() < plan.Insert[j].String() })
	return plan
}
