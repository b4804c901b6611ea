package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/store"
)

var (
	historyDB    string
	historyLimit int
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show tagged passages recorded in the journal",
	Long: `History reads the SQLite journal and prints node count, tag distribution
and the most recent submissions.

Example:
  epimap history --db ./epimap.db
  epimap history --limit 20`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDB, "db", "", "journal path (overrides storage.journal_path)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of recent nodes to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		path = cfg.Storage.JournalPath
	}
	if path == "" {
		return errors.New("no journal configured: pass --db or set storage.journal_path")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	j, err := store.Open(path, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	stats, err := j.Stats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printStats(out, stats)

	if historyLimit <= 0 || stats.TotalNodes == 0 {
		return nil
	}

	recent, err := j.Recent(historyLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nMost recent %d:\n", len(recent))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOP TAG\tTEXT")
	for _, n := range recent {
		top := ""
		if len(n.Tags) > 0 {
			top = fmt.Sprintf("%s (%.3f)", n.Tags[0].Category.Label(), n.Tags[0].Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Timestamp.Format("2006-01-02 15:04:05"), top, oneLine(n.Text, 60))
	}
	return tw.Flush()
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
