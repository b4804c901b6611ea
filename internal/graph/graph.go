// Package graph keeps classified submissions as a linear provenance chain.
//
// Every appended node after the first is linked from its predecessor, so the
// links always form a single path in submission order. The store is
// in-memory and guarded by one RWMutex. Observers see appends after the lock
// is released, one append at a time and in chain order.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ppiankov/epimap/internal/model"
)

// ErrDuplicateNode is returned when a node id is appended twice
var ErrDuplicateNode = errors.New("duplicate node id")

// Observer is notified after each successful append. link is nil for the first node.
type Observer interface {
	OnAppend(node model.Node, link *model.Link)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(node model.Node, link *model.Link)

// OnAppend calls f
func (f ObserverFunc) OnAppend(node model.Node, link *model.Link) {
	f(node, link)
}

// Option configures a Graph
type Option func(*Graph)

// WithObserver registers an observer. Observers run synchronously on the
// appending goroutine, in registration order. An observer may read the graph
// but must not append to it.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithCapacity preallocates room for n nodes
func WithCapacity(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.nodes = make([]model.Node, 0, n)
			g.links = make([]model.Link, 0, n)
		}
	}
}

// Graph is the ordered node store
type Graph struct {
	mu        sync.RWMutex
	nodes     []model.Node
	links     []model.Link
	ids       map[string]struct{}
	observers []Observer
	accepted  uint64 // next notification ticket, guarded by mu

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64 // tickets fully delivered, guarded by notifyMu
}

// New creates an empty graph
func New(opts ...Option) *Graph {
	g := &Graph{
		ids: make(map[string]struct{}),
	}
	g.notifyCond = sync.NewCond(&g.notifyMu)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Append adds node at the end of the chain and returns the link created from
// the previous tail, or nil when node is the first one.
func (g *Graph) Append(node model.Node) (*model.Link, error) {
	if node.ID == "" {
		return nil, errors.New("node id is required")
	}

	g.mu.Lock()
	if _, dup := g.ids[node.ID]; dup {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}

	// Reading the tail and writing the new node happen under one lock so
	// concurrent appends cannot both link from the same predecessor
	var link *model.Link
	if n := len(g.nodes); n > 0 {
		l := model.Link{Source: g.nodes[n-1].ID, Target: node.ID}
		g.links = append(g.links, l)
		link = &l
	}
	g.nodes = append(g.nodes, cloneNode(node))
	g.ids[node.ID] = struct{}{}
	observers := g.observers
	ticket := g.accepted
	g.accepted++
	g.mu.Unlock()

	g.notify(ticket, observers, node, link)

	return link, nil
}

// notify delivers one append once every earlier ticket has been delivered,
// so a journal never sees a link before the node it starts from
func (g *Graph) notify(ticket uint64, observers []Observer, node model.Node, link *model.Link) {
	g.notifyMu.Lock()
	for g.notified != ticket {
		g.notifyCond.Wait()
	}
	g.notifyMu.Unlock()

	defer func() {
		g.notifyMu.Lock()
		g.notified++
		g.notifyCond.Broadcast()
		g.notifyMu.Unlock()
	}()

	for _, o := range observers {
		o.OnAppend(cloneNode(node), cloneLink(link))
	}
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Last returns the most recently appended node
func (g *Graph) Last() (model.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.nodes) == 0 {
		return model.Node{}, false
	}
	return cloneNode(g.nodes[len(g.nodes)-1]), true
}

// Stats counts nodes, links and how many nodes carry each category.
// A category appears in the distribution only when at least one node has it.
func (g *Graph) Stats() model.Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := make(map[string]int)
	for _, n := range g.nodes {
		for _, t := range n.Tags {
			dist[t.Category.Label()]++
		}
	}

	return model.Stats{
		TotalNodes:      len(g.nodes),
		TotalLinks:      len(g.links),
		TagDistribution: dist,
	}
}

// Snapshot copies the current nodes and links
func (g *Graph) Snapshot() model.GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]model.Node, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = cloneNode(n)
	}
	links := make([]model.Link, len(g.links))
	copy(links, g.links)

	return model.GraphSnapshot{Nodes: nodes, Links: links}
}

// Restore replaces the contents with a previously recorded chain, e.g. one
// replayed from the journal. Observers are not notified.
func (g *Graph) Restore(snap model.GraphSnapshot) error {
	if err := ValidateChain(snap); err != nil {
		return err
	}

	nodes := make([]model.Node, len(snap.Nodes))
	ids := make(map[string]struct{}, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nodes[i] = cloneNode(n)
		ids[n.ID] = struct{}{}
	}
	links := make([]model.Link, len(snap.Links))
	copy(links, snap.Links)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.links = links
	g.ids = ids
	return nil
}

// ValidateChain checks that snap is a linear chain: unique ids, one link per
// consecutive pair, in order.
func ValidateChain(snap model.GraphSnapshot) error {
	seen := make(map[string]struct{}, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return errors.New("node without id")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	want := len(snap.Nodes) - 1
	if want < 0 {
		want = 0
	}
	if len(snap.Links) != want {
		return fmt.Errorf("expected %d links for %d nodes, got %d", want, len(snap.Nodes), len(snap.Links))
	}
	for i, l := range snap.Links {
		if l.Source != snap.Nodes[i].ID || l.Target != snap.Nodes[i+1].ID {
			return fmt.Errorf("link %d (%s -> %s) does not join consecutive nodes", i, l.Source, l.Target)
		}
	}
	return nil
}

func cloneNode(n model.Node) model.Node {
	if n.Tags == nil {
		return n
	}
	tags := make([]model.Tag, len(n.Tags))
	for i, t := range n.Tags {
		tags[i] = t
		if t.CueWords != nil {
			tags[i].CueWords = make([]string, len(t.CueWords))
			copy(tags[i].CueWords, t.CueWords)
		}
	}
	n.Tags = tags
	return n
}

func cloneLink(l *model.Link) *model.Link {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
