package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"topicrelay/internal/audit"
	"topicrelay/internal/config"
	"topicrelay/internal/domain"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded routes and deliveries from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit log is disabled (set audit.enabled: true)")
			}

			store, err := audit.Open(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Stats(context.Background(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			names := make(map[int]string, len(cfg.Relay.Routes))
			for _, r := range cfg.Relay.Routes {
				names[r.ThreadID] = r.Name
			}
			return renderStats(os.Stdout, st, names)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	return cmd
}

func renderStats(w io.Writer, st *audit.Stats, names map[int]string) error {
	fmt.Fprintf(w, "Since %s\n\n", st.Since.Format(time.RFC3339))
	fmt.Fprintf(w, "Routes: %d\n", st.Routes)

	decisions := make([]string, 0, len(st.ByDecision))
	for d := range st.ByDecision {
		decisions = append(decisions, string(d))
	}
	sort.Strings(decisions)
	for _, d := range decisions {
		fmt.Fprintf(w, "  %-10s %d\n", d, st.ByDecision[domain.Decision(d)])
	}
	fmt.Fprintf(w, "Deliveries: %d (%d failed)\n\n", st.Deliveries, st.Failed)

	if len(st.Destinations) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tTOPIC\tDELIVERED\tFAILED")
	for _, d := range st.Destinations {
		name := names[d.Destination]
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", d.Destination, name, d.Delivered, d.Failed)
	}
	return tw.Flush()
}
