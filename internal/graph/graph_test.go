package graph

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/epimap/internal/model"
)

func testNode(id string, cats ...model.Category) model.Node {
	tags := make([]model.Tag, 0, len(cats))
	for _, c := range cats {
		tags = append(tags, model.Tag{Category: c, Confidence: 0.5, CueWords: []string{"x"}, Explanation: "e"})
	}
	return model.Node{
		ID:         id,
		Text:       "text " + id,
		Tags:       tags,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SourceType: model.SourceTypeText,
	}
}

func TestAppend_FirstNodeHasNoLink(t *testing.T) {
	g := New()

	link, err := g.Append(testNode("a"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if link != nil {
		t.Errorf("expected no link for first node, got %+v", link)
	}

	stats := g.Stats()
	if stats.TotalNodes != 1 || stats.TotalLinks != 0 {
		t.Errorf("expected 1 node and 0 links, got %+v", stats)
	}
}

func TestAppend_Chain(t *testing.T) {
	g := New()
	ids := []string{"a", "b", "c", "d"}

	for i, id := range ids {
		link, err := g.Append(testNode(id))
		if err != nil {
			t.Fatalf("Append(%s) failed: %v", id, err)
		}
		if i == 0 {
			continue
		}
		want := &model.Link{Source: ids[i-1], Target: id}
		if diff := cmp.Diff(want, link); diff != "" {
			t.Errorf("link mismatch (-want +got):\n%s", diff)
		}
	}

	snap := g.Snapshot()
	wantLinks := []model.Link{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}, {Source: "c", Target: "d"}}
	if diff := cmp.Diff(wantLinks, snap.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if err := ValidateChain(snap); err != nil {
		t.Errorf("chain invalid: %v", err)
	}
	if g.Len() != 4 {
		t.Errorf("expected 4 nodes, got %d", g.Len())
	}

	last, ok := g.Last()
	if !ok || last.ID != "d" {
		t.Errorf("expected last node d, got %+v", last)
	}
}

func TestAppend_Duplicate(t *testing.T) {
	g := New()
	if _, err := g.Append(testNode("a")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	_, err := g.Append(testNode("a"))
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("duplicate must not be stored, len=%d", g.Len())
	}

	if _, err := g.Append(model.Node{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStats_Distribution(t *testing.T) {
	g := New()
	_, _ = g.Append(testNode("a", model.CategoryEmpiricalQuantitative, model.CategoryLegalPrecedential))
	_, _ = g.Append(testNode("b", model.CategoryEmpiricalQuantitative))
	_, _ = g.Append(testNode("c", model.CategoryExperientialPersonal))

	want := model.Stats{
		TotalNodes: 3,
		TotalLinks: 2,
		TagDistribution: map[string]int{
			"Empirical-Quantitative": 2,
			"Legal-Precedential":     1,
			"Experiential-Personal":  1,
		},
	}
	if diff := cmp.Diff(want, g.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStats_Empty(t *testing.T) {
	stats := New().Stats()
	if stats.TotalNodes != 0 || stats.TotalLinks != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
	if stats.TagDistribution == nil || len(stats.TagDistribution) != 0 {
		t.Errorf("expected empty non-nil distribution, got %#v", stats.TagDistribution)
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	g := New()
	_, _ = g.Append(testNode("a", model.CategoryRitualCeremonial))

	snap := g.Snapshot()
	snap.Nodes[0].Text = "changed"
	snap.Nodes[0].Tags[0].CueWords[0] = "changed"

	again := g.Snapshot()
	if again.Nodes[0].Text == "changed" || again.Nodes[0].Tags[0].CueWords[0] == "changed" {
		t.Error("snapshot mutation leaked into the graph")
	}
}

func TestAppend_Concurrent(t *testing.T) {
	g := New()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := g.Append(testNode(fmt.Sprintf("n%03d", i))); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot()
	if len(snap.Nodes) != n || len(snap.Links) != n-1 {
		t.Fatalf("expected %d nodes and %d links, got %d and %d", n, n-1, len(snap.Nodes), len(snap.Links))
	}
	if err := ValidateChain(snap); err != nil {
		t.Errorf("concurrent appends broke the chain: %v", err)
	}
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var got []string

	obs := ObserverFunc(func(node model.Node, link *model.Link) {
		mu.Lock()
		defer mu.Unlock()
		if link == nil {
			got = append(got, node.ID)
			return
		}
		got = append(got, link.Source+"->"+link.Target)
	})

	g := New(WithObserver(obs), WithObserver(nil), WithCapacity(4))
	for _, id := range []string{"a", "b", "c"} {
		if _, err := g.Append(testNode(id)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// Rejected appends are not observed
	_, _ = g.Append(testNode("a"))

	if diff := cmp.Diff([]string{"a", "a->b", "b->c"}, got); diff != "" {
		t.Errorf("observed sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestObserver_CanReadGraph(t *testing.T) {
	var g *Graph
	lens := make(chan int, 1)
	g = New(WithObserver(ObserverFunc(func(model.Node, *model.Link) {
		// Would deadlock if observers ran under the write lock
		lens <- g.Len()
	})))

	if _, err := g.Append(testNode("a")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if l := <-lens; l != 1 {
		t.Errorf("expected observer to see 1 node, got %d", l)
	}
}

func TestObserver_OrderUnderConcurrentAppends(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var links []model.Link

	// The first observer stalls for a varying time so a later append would
	// overtake an earlier one if notifications were not serialized
	slow := ObserverFunc(func(node model.Node, _ *model.Link) {
		var h int
		for _, r := range node.ID {
			h += int(r)
		}
		time.Sleep(time.Duration(h%5) * 100 * time.Microsecond)
	})
	record := ObserverFunc(func(node model.Node, link *model.Link) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, node.ID)
		if link != nil {
			links = append(links, *link)
		}
	})

	g := New(WithObserver(slow), WithObserver(record))
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := g.Append(testNode(fmt.Sprintf("n%03d", i))); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot()
	want := make([]string, len(snap.Nodes))
	for i, node := range snap.Nodes {
		want[i] = node.ID
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("observers saw appends out of chain order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.Links, links); diff != "" {
		t.Errorf("observed links mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore(t *testing.T) {
	src := New()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = src.Append(testNode(id, model.CategoryTheologicalDoctrinal))
	}

	dst := New()
	if err := dst.Restore(src.Snapshot()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if diff := cmp.Diff(src.Snapshot(), dst.Snapshot()); diff != "" {
		t.Errorf("restored graph differs (-want +got):\n%s", diff)
	}

	// Appends continue the restored chain
	link, err := dst.Append(testNode("d"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if link == nil || link.Source != "c" {
		t.Errorf("expected link from c, got %+v", link)
	}
	if _, err := dst.Append(testNode("b")); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("restored ids should be reserved, got %v", err)
	}
}

func TestValidateChain(t *testing.T) {
	a, b, c := testNode("a"), testNode("b"), testNode("c")

	tests := []struct {
		name    string
		snap    model.GraphSnapshot
		wantErr bool
	}{
		{"empty", model.GraphSnapshot{}, false},
		{"single", model.GraphSnapshot{Nodes: []model.Node{a}}, false},
		{"valid", model.GraphSnapshot{Nodes: []model.Node{a, b, c}, Links: []model.Link{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}}}, false},
		{"missing link", model.GraphSnapshot{Nodes: []model.Node{a, b, c}, Links: []model.Link{{Source: "a", Target: "b"}}}, true},
		{"skipping link", model.GraphSnapshot{Nodes: []model.Node{a, b, c}, Links: []model.Link{{Source: "a", Target: "b"}, {Source: "a", Target: "c"}}}, true},
		{"duplicate id", model.GraphSnapshot{Nodes: []model.Node{a, a}, Links: []model.Link{{Source: "a", Target: "a"}}}, true},
		{"dangling link", model.GraphSnapshot{Links: []model.Link{{Source: "a", Target: "b"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChain(tt.snap)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChain() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
