package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/epimap/internal/classify"
	"github.com/ppiankov/epimap/internal/model"
)

var (
	tagExplain bool
	tagJSON    bool
)

// tagCmd represents the tag command
var tagCmd = &cobra.Command{
	Use:   "tag [text...]",
	Short: "Tag a single passage",
	Long: `Tag classifies one passage and prints its epistemology tags.
With no arguments, or "-", the passage is read from stdin.

Example:
  epimap tag "The p<0.05 value indicates statistical significance."
  echo "Our elders say the river remembers." | epimap tag
  epimap tag --explain "According to law, this regulation applies."`,
	RunE: runTag,
}

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().BoolVar(&tagExplain, "explain", false, "print the per-category score breakdown")
	tagCmd.Flags().BoolVar(&tagJSON, "json", false, "print the node as JSON")
}

func runTag(cmd *cobra.Command, args []string) error {
	text, err := passageFromArgs(args, cmd.InOrStdin())
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

	res, err := a.pipeline.TagText(context.Background(), text)
	if err != nil {
		return fmt.Errorf("tag: %w", err)
	}

	out := cmd.OutOrStdout()
	if tagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Node)
	}

	printNode(out, res.Node)
	if tagExplain {
		fmt.Fprintln(out)
		printScores(out, a.pipeline.Classifier().Score(text), a.pipeline.Classifier().MinConfidence())
	}
	return nil
}

func passageFromArgs(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printNode(w io.Writer, node model.Node) {
	fmt.Fprintf(w, "Node: %s\n", node.ID)
	fmt.Fprintf(w, "Text: %s\n\n", node.Text)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCONFIDENCE\tCUE WORDS")
	for _, t := range node.Tags {
		fmt.Fprintf(tw, "%s\t%.3f\t%s\n", t.Category.Label(), t.Confidence, strings.Join(t.CueWords, ", "))
	}
	_ = tw.Flush()
}

func printScores(w io.Writer, scores []classify.Score, threshold float64) {
	fmt.Fprintf(w, "Score breakdown (threshold %.3f):\n", threshold)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tKEYWORDS\tPATTERNS\tCONFIDENCE\tACCEPTED")
	for _, s := range scores {
		accepted := ""
		if s.Accepted {
			accepted = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d (%.2f)\t%d (%.2f)\t%.3f\t%s\n",
			s.Category.Label(),
			len(s.MatchedKeywords), s.KeywordScore,
			len(s.MatchedPatterns), s.PatternScore,
			s.Confidence, accepted,
		)
	}
	_ = tw.Flush()
}
