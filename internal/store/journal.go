// Package store persists the node chain to SQLite so it survives restarts.
//
// The journal is write-through: it observes graph appends and records each
// node, its tags and its link in one transaction. Replay restores the chain
// in append order.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/logging"
	"github.com/ppiankov/epimap/internal/model"
)

//go:embed schema.sql
var schema string

// Journal handles database operations
type Journal struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// Open opens or creates the journal at dbPath
func Open(dbPath string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps append order equal to commit order
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Journal{db: db, logger: logging.OrNop(logger)}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a node, its tags and the link that reached it
func (j *Journal) Record(node model.Node, link *model.Link) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		"INSERT INTO nodes (id, text, source_type, created_at) VALUES (?, ?, ?, ?)",
		node.ID, node.Text, node.SourceType, node.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("insert node: %w", err)
	}

	for i, t := range node.Tags {
		cues, err := json.Marshal(t.CueWords)
		if err != nil {
			return fmt.Errorf("encode cue words: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO tags (node_id, position, category, confidence, cue_words, explanation) VALUES (?, ?, ?, ?, ?, ?)",
			node.ID, i, t.Category.Label(), t.Confidence, string(cues), t.Explanation,
		); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}

	if link != nil {
		if _, err := tx.Exec("INSERT INTO links (source, target) VALUES (?, ?)", link.Source, link.Target); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// OnAppend implements graph.Observer
func (j *Journal) OnAppend(node model.Node, link *model.Link) {
	if err := j.Record(node, link); err != nil {
		j.logger.Warn("node not journaled", zap.String("node_id", node.ID), zap.Error(err))
	}
}

// Load reads the whole chain back in append order
func (j *Journal) Load() (model.GraphSnapshot, error) {
	snap := model.GraphSnapshot{Nodes: []model.Node{}, Links: []model.Link{}}

	rows, err := j.db.Query("SELECT id, text, source_type, created_at FROM nodes ORDER BY seq")
	if err != nil {
		return snap, fmt.Errorf("list nodes: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var n model.Node
		if err := rows.Scan(&n.ID, &n.Text, &n.SourceType, &n.Timestamp); err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("scan node: %w", err)
		}
		n.Tags = []model.Tag{}
		index[n.ID] = len(snap.Nodes)
		snap.Nodes = append(snap.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return snap, fmt.Errorf("list nodes: %w", err)
	}
	_ = rows.Close()

	tagRows, err := j.db.Query("SELECT node_id, category, confidence, cue_words, explanation FROM tags ORDER BY node_id, position")
	if err != nil {
		return snap, fmt.Errorf("list tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			nodeID, label, cues string
			t                   model.Tag
		)
		if err := tagRows.Scan(&nodeID, &label, &t.Confidence, &cues, &t.Explanation); err != nil {
			return snap, fmt.Errorf("scan tag: %w", err)
		}
		cat, err := model.ParseCategory(label)
		if err != nil {
			return snap, fmt.Errorf("tag on %s: %w", nodeID, err)
		}
		t.Category = cat
		if err := json.Unmarshal([]byte(cues), &t.CueWords); err != nil {
			return snap, fmt.Errorf("decode cue words: %w", err)
		}
		if i, ok := index[nodeID]; ok {
			snap.Nodes[i].Tags = append(snap.Nodes[i].Tags, t)
		}
	}
	if err := tagRows.Err(); err != nil {
		return snap, fmt.Errorf("list tags: %w", err)
	}

	// Links are reconstructed from node order; the links table is checked against it
	for i := 1; i < len(snap.Nodes); i++ {
		snap.Links = append(snap.Links, model.Link{Source: snap.Nodes[i-1].ID, Target: snap.Nodes[i].ID})
	}
	var stored int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM links").Scan(&stored); err != nil {
		return snap, fmt.Errorf("count links: %w", err)
	}
	if stored != len(snap.Links) {
		return snap, fmt.Errorf("journal has %d links for %d nodes", stored, len(snap.Nodes))
	}

	return snap, nil
}

// Stats aggregates the journal without loading every node
func (j *Journal) Stats() (model.Stats, error) {
	stats := model.Stats{TagDistribution: map[string]int{}}

	if err := j.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&stats.TotalNodes); err != nil {
		return stats, fmt.Errorf("count nodes: %w", err)
	}
	if err := j.db.QueryRow("SELECT COUNT(*) FROM links").Scan(&stats.TotalLinks); err != nil {
		return stats, fmt.Errorf("count links: %w", err)
	}

	rows, err := j.db.Query("SELECT category, COUNT(*) FROM tags GROUP BY category")
	if err != nil {
		return stats, fmt.Errorf("tag distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return stats, fmt.Errorf("scan distribution: %w", err)
		}
		stats.TagDistribution[label] = count
	}
	return stats, rows.Err()
}

// Recent returns the last limit nodes, newest first, without tags
func (j *Journal) Recent(limit int) ([]model.Node, error) {
	rows, err := j.db.Query(
		"SELECT id, text, source_type, created_at FROM nodes ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		var n model.Node
		if err := rows.Scan(&n.ID, &n.Text, &n.SourceType, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
