package reconcile

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/mdblog/internal/blogkey"
	"github.com/starford/mdblog/internal/models"
)

func id(category, slug string) models.Identity {
	return models.Identity{Category: category, Slug: slug}
}

// apply returns the key set a store holds after plan is applied to keys.
func apply(keys []string, plan Plan) []string {
	removed := make(map[string]struct{}, len(plan.Remove))
	for _, r := range plan.Remove {
		removed[r.Key] = struct{}{}
	}
	set := make(map[string]struct{}, len(keys)+len(plan.Insert))
	for _, k := range keys {
		if _, gone := removed[k]; !gone {
			set[k] = struct{}{}
		}
	}
	for _, k := range plan.Insert {
		set[k.String()] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestCompute_StaleVersionReplaced(t *testing.T) {
	disk := Inventory{id("news", "launch"): 1000}
	plan := Compute(disk, []string{"news_launch_900"})

	want := Plan{
		Remove: []Removal{{Key: "news_launch_900", Reason: ReasonStale}},
		Insert: []blogkey.Key{{Category: "news", Slug: "launch", Version: 1000}},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_UpToDateUntouched(t *testing.T) {
	disk := Inventory{id("news", "launch"): 1000}
	plan := Compute(disk, []string{"news_launch_1000"})

	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan)
	}
	if plan.Unchanged != 1 {
		t.Errorf("unchanged = %d, want 1", plan.Unchanged)
	}
}

func TestCompute_DuplicateKeepsNewest(t *testing.T) {
	disk := Inventory{id("cat", "slug"): 200}
	plan := Compute(disk, []string{"cat_slug_200", "cat_slug_100"})

	want := Plan{
		Remove:    []Removal{{Key: "cat_slug_100", Reason: ReasonDuplicate}},
		Unchanged: 1,
	}
	if diff := cmp.Diff(want, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_DuplicateOrderIndependent(t *testing.T) {
	disk := Inventory{id("cat", "slug"): 200}
	a := Compute(disk, []string{"cat_slug_100", "cat_slug_200", "cat_slug_150"})
	b := Compute(disk, []string{"cat_slug_150", "cat_slug_200", "cat_slug_100"})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("plan depends on key order (-a +b):\n%s", diff)
	}
	if len(a.Remove) != 2 || a.Unchanged != 1 {
		t.Errorf("plan = %+v", a)
	}
}

func TestCompute_DuplicateNewestStaleRemovesAll(t *testing.T) {
	disk := Inventory{id("cat", "slug"): 300}
	plan := Compute(disk, []string{"cat_slug_100", "cat_slug_200"})

	want := Plan{
		Remove: []Removal{
			{Key: "cat_slug_100", Reason: ReasonDuplicate},
			{Key: "cat_slug_200", Reason: ReasonStale},
		},
		Insert: []blogkey.Key{{Category: "cat", Slug: "slug", Version: 300}},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_OrphanRemoved(t *testing.T) {
	plan := Compute(Inventory{}, []string{"cat_slug_100"})

	want := Plan{Remove: []Removal{{Key: "cat_slug_100", Reason: ReasonOrphan}}}
	if diff := cmp.Diff(want, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_InvalidKeysAlwaysPurged(t *testing.T) {
	disk := Inventory{id("cat", "slug"): 100}
	keys := []string{"garbage", "cat_slug", "cat_slug_0", "cat_slug_x", "_slug_100", "cat_slug_100"}
	plan := Compute(disk, keys)

	var invalid []string
	for _, r := range plan.Remove {
		if r.Reason != ReasonInvalid {
			t.Errorf("unexpected removal %+v", r)
			continue
		}
		invalid = append(invalid, r.Key)
	}
	want := []string{"_slug_100", "cat_slug", "cat_slug_0", "cat_slug_x", "garbage"}
	if diff := cmp.Diff(want, invalid); diff != "" {
		t.Errorf("invalid removals (-want +got):\n%s", diff)
	}
	if len(plan.Insert) != 0 || plan.Unchanged != 1 {
		t.Errorf("valid entry should stay untouched: %+v", plan)
	}
}

func TestCompute_MissingInserted(t *testing.T) {
	disk := Inventory{id("b", "two"): 20, id("a", "one"): 10}
	plan := Compute(disk, nil)

	want := []blogkey.Key{
		{Category: "a", Slug: "one", Version: 10},
		{Category: "b", Slug: "two", Version: 20},
	}
	if diff := cmp.Diff(want, plan.Insert); diff != "" {
		t.Errorf("inserts (-want +got):\n%s", diff)
	}
}

func TestCompute_RepeatedKeyNotRemoved(t *testing.T) {
	disk := Inventory{id("cat", "slug"): 100}
	plan := Compute(disk, []string{"cat_slug_100", "cat_slug_100"})
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	disk := Inventory{id("news", "launch"): 1000, id("misc", "notes"): 5}
	keys := []string{"news_launch_900", "bad", "misc_old_3"}

	first := Compute(disk, keys)
	second := Compute(disk, apply(keys, first))
	if !second.Empty() {
		t.Errorf("second run should be empty, got %+v", second)
	}
}

// TestCompute_Convergence checks that for random inventories one plan leaves
// exactly one key per disk identity carrying the disk version.
func TestCompute_Convergence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	categories := []string{"go", "rust", "life"}
	slugs := []string{"a", "b", "c", "d"}

	for round := 0; round < 200; round++ {
		disk := Inventory{}
		for _, c := range categories {
			for _, s := range slugs {
				if rng.Intn(2) == 0 {
					disk[id(c, s)] = int64(rng.Intn(5) + 1)
				}
			}
		}

		var keys []string
		seen := map[string]struct{}{}
		for i := 0; i < rng.Intn(15); i++ {
			var k string
			switch rng.Intn(4) {
			case 0:
				k = fmt.Sprintf("junk%d", rng.Intn(5))
			default:
				k = blogkey.Encode(categories[rng.Intn(len(categories))], slugs[rng.Intn(len(slugs))], int64(rng.Intn(5)+1))
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}

		got := apply(keys, Compute(disk, keys))

		var want []string
		for ident, v := range disk {
			want = append(want, blogkey.Encode(ident.Category, ident.Slug, v))
		}
		sort.Strings(want)
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round %d: store did not converge (-want +got):\n%s", round, diff)
		}
	}
}
