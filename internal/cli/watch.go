package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/epimap/internal/events"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print node.tagged events as they are published",
	Long: `Watch subscribes to events.subject on events.nats_url and prints one
line per tagged node until interrupted.

Example:
  EPIMAP_EVENTS_NATS_URL=nats://localhost:4222 epimap watch`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Events.NATSURL == "" {
		return errors.New("events.nats_url is not set")
	}

	nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name("epimap-watch"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	out := cmd.OutOrStdout()
	sub, err := events.Subscribe(nc, cfg.Events.Subject, func(ev events.Event) {
		labels := make([]string, len(ev.Node.Tags))
		for i, t := range ev.Node.Tags {
			labels[i] = fmt.Sprintf("%s:%.3f", t.Category.Label(), t.Confidence)
		}
		fmt.Fprintf(out, "%s %s [%s] %s\n",
			ev.Published.Format("15:04:05"), ev.Node.ID, strings.Join(labels, " "), oneLine(ev.Node.Text, 60))
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	fmt.Fprintf(os.Stderr, "Watching %s on %s (Ctrl+C to stop)\n", cfg.Events.Subject, cfg.Events.NATSURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
