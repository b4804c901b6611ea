package model

import "time"

// SourceTypeText is the only source type accepted in the current scope
const SourceTypeText = "text"

// Tag is one epistemology label assigned to a passage
type Tag struct {
	Category    Category `json:"type" yaml:"type"`               // Display label on the wire
	Confidence  float64  `json:"confidence" yaml:"confidence"`   // 0.0-1.0, three decimals
	CueWords    []string `json:"cue_words" yaml:"cue_words"`     // At most three catalogue keywords
	Explanation string   `json:"explanation" yaml:"explanation"` // Static text bound to the category
}

// Node is one classified submission retained in the graph
type Node struct {
	ID         string    `json:"id" yaml:"id"`
	Text       string    `json:"text" yaml:"text"` // First 200 characters of the submission
	Tags       []Tag     `json:"tags" yaml:"tags"` // Highest confidence first
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	SourceType string    `json:"source_type" yaml:"source_type"`
}

// HasCategory reports whether the node carries a tag for c
func (n Node) HasCategory(c Category) bool {
	for _, t := range n.Tags {
		if t.Category == c {
			return true
		}
	}
	return false
}

// Link records submission order: Source was appended immediately before Target
type Link struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// GraphSnapshot is a point-in-time copy of the graph contents
type GraphSnapshot struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Links []Link `json:"links" yaml:"links"`
}

// Stats aggregates tag frequencies over the graph
type Stats struct {
	TotalNodes      int            `json:"total_nodes" yaml:"total_nodes"`
	TotalLinks      int            `json:"total_links" yaml:"total_links"`
	TagDistribution map[string]int `json:"tag_distribution" yaml:"tag_distribution"` // Display label -> count
}

// TagResponse is the envelope returned for a tagging request
type TagResponse struct {
	Success        bool    `json:"success"`
	Node           *Node   `json:"node"`
	Error          *string `json:"error"`
	ProcessingTime float64 `json:"processing_time"` // Seconds
}
