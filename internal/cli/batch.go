package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/epimap/internal/extract"
	"github.com/ppiankov/epimap/internal/model"
	"github.com/ppiankov/epimap/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	batchHTML    bool
	batchOutJSON string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Tag many passages from a file in parallel",
	Long: `Batch tags every passage in a file:
- Plain text: one passage per line (blank lines and # comments skipped)
- HTML (--html): visible text split into sentences
- Classification runs in parallel; nodes are appended in file order

Example:
  epimap batch passages.txt
  epimap batch page.html --html --concurrency 8
  epimap batch passages.txt --json results.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchHTML, "html", false, "treat the input as an HTML document")
	batchCmd.Flags().StringVar(&batchOutJSON, "json", "", "write per-passage results to this JSON file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	texts, err := readBatchInput(file, batchHTML)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	fmt.Fprintf(os.Stderr, "Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "Passages:     %d\n", len(texts))
	fmt.Fprintf(os.Stderr, "Workers:      %d\n\n", concurrency)

	start := time.Now()
	results := worker.NewBatchTagger(a.pipeline, concurrency).TagAll(ctx, texts)

	if batchOutJSON != "" {
		if err := writeResultsJSON(batchOutJSON, results); err != nil {
			return err
		}
	}

	printBatchSummary(cmd.OutOrStdout(), results, time.Since(start), a.graph.Stats())
	return nil
}

func readBatchInput(file string, asHTML bool) ([]string, error) {
	if !asHTML {
		texts, err := worker.ReadPassagesFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("read passages: %w", err)
		}
		return texts, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	return passagesFromHTML(string(data))
}

func passagesFromHTML(htmlContent string) ([]string, error) {
	doc, err := extract.NewPassageExtractor(extract.DefaultMinLength, extract.DefaultMaxLength).ExtractHTML(htmlContent)
	if err != nil {
		return nil, fmt.Errorf("extract passages: %w", err)
	}
	texts := make([]string, len(doc.Passages))
	for i, p := range doc.Passages {
		texts[i] = p.Text
	}
	return texts, nil
}

// passageRecord is the JSON form of one batch result
type passageRecord struct {
	Index int         `json:"index"`
	Text  string      `json:"text"`
	Node  *model.Node `json:"node,omitempty"`
	Error string      `json:"error,omitempty"`
}

func writeResultsJSON(path string, results []worker.PassageResult) error {
	records := make([]passageRecord, len(results))
	for i, r := range results {
		records[i] = passageRecord{Index: r.Index, Text: r.Text}
		if r.Error != nil {
			records[i].Error = r.Error.Error()
			continue
		}
		node := r.Result.Node
		records[i].Node = &node
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func printBatchSummary(w io.Writer, results []worker.PassageResult, elapsed time.Duration, stats model.Stats) {
	summary := worker.Summarize(results)

	fmt.Fprintf(w, "Tagged %d/%d passages in %v", summary.Tagged, summary.Total, elapsed.Round(time.Millisecond))
	if summary.Failed > 0 {
		fmt.Fprintf(w, " (%d failed)", summary.Failed)
	}
	fmt.Fprintln(w)

	if summary.Failed > 0 {
		for _, r := range results {
			if r.Error != nil {
				fmt.Fprintf(w, "  #%d: %v\n", r.Index+1, r.Error)
			}
		}
	}
	fmt.Fprintln(w)
	printStats(w, stats)
}

func printStats(w io.Writer, stats model.Stats) {
	fmt.Fprintf(w, "Nodes: %d  Links: %d\n", stats.TotalNodes, stats.TotalLinks)
	if len(stats.TagDistribution) == 0 {
		return
	}

	type row struct {
		label string
		count int
	}
	rows := make([]row, 0, len(stats.TagDistribution))
	for label, count := range stats.TagDistribution {
		rows = append(rows, row{label, count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].label < rows[j].label
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNODES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", r.label, r.count)
	}
	_ = tw.Flush()
}
