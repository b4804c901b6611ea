package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/epimap/internal/pipeline"
)

// Tagger is the part of the pipeline a batch drives: classification may run
// in parallel, appends happen one at a time
type Tagger interface {
	Detect(ctx context.Context, text string) (*pipeline.Detection, error)
	Commit(d *pipeline.Detection) (*pipeline.Result, error)
}

// DetectJob classifies one passage
type DetectJob struct {
	Index  int
	Text   string
	Tagger Tagger
}

// Execute executes the detect job
func (j *DetectJob) Execute(ctx context.Context) Result {
	d, err := j.Tagger.Detect(ctx, j.Text)
	return &DetectResult{
		Index:     j.Index,
		Detection: d,
		Error:     err,
	}
}

// DetectResult represents the result of a detect job
type DetectResult struct {
	Index     int
	Detection *pipeline.Detection
	Error     error
}

// GetError returns the error from the detect result
func (r *DetectResult) GetError() error {
	return r.Error
}

// PassageResult is the outcome for one input passage
type PassageResult struct {
	Index  int
	Text   string
	Result *pipeline.Result
	Error  error
}

// BatchSummary counts batch outcomes
type BatchSummary struct {
	Total  int
	Tagged int
	Failed int
}

// BatchTagger tags many passages concurrently
type BatchTagger struct {
	tagger      Tagger
	concurrency int
}

// NewBatchTagger creates a new batch tagger
func NewBatchTagger(tagger Tagger, concurrency int) *BatchTagger {
	return &BatchTagger{
		tagger:      tagger,
		concurrency: concurrency,
	}
}

// TagAll classifies texts in parallel, then appends them to the graph in
// input order so the chain's links follow the input sequence.
// Results are returned in input order.
func (b *BatchTagger) TagAll(ctx context.Context, texts []string) []PassageResult {
	if len(texts) == 0 {
		return []PassageResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	for i, text := range texts {
		if err := pool.Submit(&DetectJob{Index: i, Text: text, Tagger: b.tagger}); err != nil {
			// The rest are reported as cancelled below
			break
		}
	}

	results := pool.Wait()

	detections := make([]*DetectResult, len(texts))
	for _, r := range results {
		dr := r.(*DetectResult)
		detections[dr.Index] = dr
	}

	out := make([]PassageResult, len(texts))
	for i, text := range texts {
		out[i] = PassageResult{Index: i, Text: text}

		dr := detections[i]
		switch {
		case dr == nil:
			// Dropped by cancellation before a worker picked it up
			out[i].Error = cancelledError(ctx)
		case dr.Error != nil:
			out[i].Error = dr.Error
		case ctx.Err() != nil:
			out[i].Error = ctx.Err()
		default:
			out[i].Result, out[i].Error = b.tagger.Commit(dr.Detection)
		}
	}

	return out
}

// TagFile reads passages from a file (one per line) and tags them
func (b *BatchTagger) TagFile(ctx context.Context, filePath string) ([]PassageResult, error) {
	texts, err := ReadPassagesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read passages: %w", err)
	}

	return b.TagAll(ctx, texts), nil
}

// Summarize counts successes and failures
func Summarize(results []PassageResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Error != nil {
			s.Failed++
		} else {
			s.Tagged++
		}
	}
	return s
}

// ReadPassagesFromFile reads passages from a file (one per line)
func ReadPassagesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadPassages(file)
}

// ReadPassages reads one passage per line, skipping blank lines and # comments
func ReadPassages(r io.Reader) ([]string, error) {
	var passages []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		passages = append(passages, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return passages, nil
}

func cancelledError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("passage was not processed")
}
