package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/collector/filings"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/logger"
	"github.com/newthinker/comps/internal/storage/archive"
)

var filingsCmd = &cobra.Command{
	Use:   "filings",
	Short: "Manage stored filing documents",
}

var filingsPutCmd = &cobra.Command{
	Use:   "put FILE [FILE...]",
	Short: "Store filing documents (JSON) in the filings archive",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilingsPut,
}

var filingsListCmd = &cobra.Command{
	Use:   "list [PERIOD]",
	Short: "List stored filing documents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFilingsList,
}

func init() {
	rootCmd.AddCommand(filingsCmd)
	filingsCmd.AddCommand(filingsPutCmd)
	filingsCmd.AddCommand(filingsListCmd)
}

// withFilingStore handles common config and store setup.
func withFilingStore(fn func(store archive.Storage, log *zap.Logger) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	store, err := archive.New(cfg.Storage.Filings)
	if err != nil {
		return fmt.Errorf("opening filings store: %w", err)
	}
	return fn(store, log)
}

func runFilingsPut(cmd *cobra.Command, args []string) error {
	return withFilingStore(func(store archive.Storage, log *zap.Logger) error {
		src := filings.New(store, log)
		ctx := context.Background()
		for _, file := range args {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var doc core.FilingResult
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("decoding %s: %w", file, err)
			}
			doc.Symbol = strings.ToUpper(doc.Symbol)
			if err := src.Put(ctx, &doc); err != nil {
				return fmt.Errorf("storing %s: %w", file, err)
			}
			log.Info("filing stored",
				zap.String("symbol", doc.Symbol),
				zap.String("period", doc.Period),
				zap.Int("metrics", doc.Metrics.Len()))
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", filings.Path(doc.Period, doc.Symbol))
		}
		return nil
	})
}

func runFilingsList(cmd *cobra.Command, args []string) error {
	return withFilingStore(func(store archive.Storage, log *zap.Logger) error {
		prefix := "filings"
		if len(args) == 1 {
			prefix = "filings/" + args[0]
		}
		paths, err := store.List(context.Background(), prefix)
		if err != nil {
			return fmt.Errorf("listing filings: %w", err)
		}
		if len(paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No filings found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tSYMBOL\tPATH\t")
		for _, p := range paths {
			parts := strings.Split(strings.TrimSuffix(p, ".json"), "/")
			if len(parts) < 3 {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", parts[len(parts)-2], parts[len(parts)-1], p)
		}
		return w.Flush()
	})
}
