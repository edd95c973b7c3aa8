package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/newthinker/comps/internal/analysis"
	"github.com/newthinker/comps/internal/app"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/logger"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL [SYMBOL...]",
	Short: "Run a comps analysis for one or more symbols",
	Example: `  comps analyze AAPL MSFT GOOGL
  comps analyze --peers megacap_tech --format json
  comps analyze NVDA AMD --debt-mode split --include-leases`,
	RunE: runAnalyze,
}

var (
	analyzePeriod      string
	analyzePrior       string
	analyzeFormat      string
	analyzeLeases      bool
	analyzeEMI         bool
	analyzeDebtMode    string
	analyzeCash        string
	analyzePeers       string
	analyzeArchive     bool
	analyzeWithSummary bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	bindAnalyzeFlags(analyzeCmd)
}

func bindAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&analyzePeriod, "period", "", "filing period label (default from config)")
	f.StringVar(&analyzePrior, "prior-period", "", "prior filing period label for growth")
	f.StringVarP(&analyzeFormat, "format", "f", "table", "output format: table, json, yaml")
	f.BoolVar(&analyzeLeases, "include-leases", false, "add operating lease liabilities to EV")
	f.BoolVar(&analyzeEMI, "subtract-emi", false, "subtract equity method investments from EV")
	f.StringVar(&analyzeDebtMode, "debt-mode", "", "debt treatment: total_only, split, total_plus_short")
	f.StringVar(&analyzeCash, "cash", "", "cash treatment: subtract, ignore")
	f.StringVar(&analyzePeers, "peers", "", "named peer set to add to the symbols")
	f.BoolVar(&analyzeArchive, "archive", false, "archive results to the configured store")
	f.BoolVar(&analyzeWithSummary, "summary", false, "append peer statistics")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if err := cfg.RequireFinnhubKey(); err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	symbols := append([]string(nil), args...)
	if analyzePeers != "" {
		peers, ok := a.PeerSet(analyzePeers)
		if !ok {
			return core.WrapError(core.ErrPeerSetUnknown, fmt.Errorf("%q", analyzePeers))
		}
		symbols = append(symbols, peers...)
	}

	req, err := analyzeRequest(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	summary, err := a.Summary(ctx, symbols, req)
	if err != nil {
		return err
	}
	for _, c := range summary.Companies {
		if c.Degraded() {
			log.Warn("analysis degraded",
				zap.String("symbol", c.Symbol),
				zap.Strings("errors", c.Errors))
		}
	}
	if !analyzeWithSummary {
		summary.Multiples = nil
	}

	return render(cmd.OutOrStdout(), analyzeFormat, summary)
}

// analyzeRequest builds the app request, overriding the EV policy only
// for flags the user set.
func analyzeRequest(cmd *cobra.Command) (app.Request, error) {
	req := app.Request{
		Period:      analyzePeriod,
		PriorPeriod: analyzePrior,
		Archive:     analyzeArchive,
	}

	f := cmd.Flags()
	if !f.Changed("include-leases") && !f.Changed("subtract-emi") &&
		!f.Changed("debt-mode") && !f.Changed("cash") {
		return req, nil
	}

	policy := core.DefaultEVPolicy()
	if f.Changed("include-leases") {
		policy.IncludeLeases = analyzeLeases
	}
	if f.Changed("subtract-emi") {
		policy.SubtractEquityMethodInvestments = analyzeEMI
	}
	if f.Changed("debt-mode") {
		policy.DebtMode = core.DebtMode(analyzeDebtMode)
	}
	if f.Changed("cash") {
		policy.CashTreatment = core.CashTreatment(analyzeCash)
	}
	if err := policy.Validate(); err != nil {
		return req, err
	}
	req.Policy = &policy
	return req, nil
}

func render(w io.Writer, format string, summary *app.Summary) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if summary.Multiples == nil {
			return enc.Encode(summary.Companies)
		}
		return enc.Encode(summary)
	case "yaml", "yml":
		var v any = summary.Companies
		if summary.Multiples != nil {
			v = summary
		}
		return writeYAML(w, v)
	case "table", "":
		return writeTable(w, summary)
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// writeYAML round-trips through JSON so absent numbers render as null and
// provenance sources keep their JSON field names.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decoding results: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("writing yaml: %w", err)
	}
	return enc.Close()
}

var tableMultiples = []string{"ev_revenue", "ev_ebitda", "ev_ebit", "ev_fcf", "pe"}

func writeTable(w io.Writer, summary *app.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tCOMPANY\tMKT CAP\tEV\tEV/REV\tEV/EBITDA\tEV/EBIT\tEV/FCF\tP/E\tREV YOY\tSTATUS\t")
	for _, c := range summary.Companies {
		var mcap, ev core.Number
		if c.Market != nil {
			mcap = c.Market.MarketCapValue()
		}
		if c.EVBridge != nil {
			ev = c.EVBridge.EnterpriseValueAmount()
		}
		row := []string{c.Symbol, c.CompanyName, formatMoney(mcap), formatMoney(ev)}
		for _, m := range tableMultiples {
			row = append(row, formatMultiple(c.Multiples[m]))
		}
		row = append(row, formatPercent(c.Growth["revenue_yoy"]), status(c))
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(summary.Multiples) > 0 {
		fmt.Fprintln(w)
		return writeStats(w, summary.Multiples)
	}
	return nil
}

func writeStats(w io.Writer, stats []analysis.PeerStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MULTIPLE\tN\tMIN\tP25\tMEDIAN\tMEAN\tP75\tMAX\t")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%.1fx\t%.1fx\t%.1fx\t%.1fx\t%.1fx\t%.1fx\t\n",
			s.Metric, s.Count, s.Min, s.P25, s.Median, s.Mean, s.P75, s.Max)
	}
	return tw.Flush()
}

func status(c *core.CompanyAnalysis) string {
	switch {
	case c.Degraded():
		return "DEGRADED"
	case len(c.Warnings) > 0:
		return fmt.Sprintf("OK (%d warnings)", len(c.Warnings))
	default:
		return "OK"
	}
}

func formatMoney(n core.Number) string {
	if !n.Valid {
		return "-"
	}
	v := n.Value
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%s%.2fT", sign, v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%s%.2fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s%.2fM", sign, v/1e6)
	default:
		return fmt.Sprintf("%s%.0f", sign, v)
	}
}

func formatMultiple(dv *core.DerivedValue) string {
	if dv == nil || !dv.Value.Valid {
		return "-"
	}
	return fmt.Sprintf("%.1fx", dv.Value.Value)
}

func formatPercent(dv *core.DerivedValue) string {
	if dv == nil || !dv.Value.Valid {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", dv.Value.Value*100)
}
