package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/normalize"
	"github.com/sells-group/offer-sourcing/internal/sourcing"
)

var (
	searchCategory     string
	searchMinPrice     float64
	searchMaxPrice     float64
	searchCurrency     string
	searchAttrs        []string
	searchForceRefresh bool
	searchDeadline     time.Duration
	searchJSON         bool
)

var searchCmd = &cobra.Command{
	Use:   "search [phrase]",
	Short: "Search all enabled providers and print ranked offers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := buildQuery(args, cmd.Flags())
		if err != nil {
			return err
		}

		env, err := initSourcing(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.Search(cmd.Context(), q, sourcing.Options{
			ForceRefresh: searchForceRefresh,
			Deadline:     searchDeadline,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		return renderResult(out, res)
	},
}

// buildQuery turns the positional phrase and flags into a canonical query.
// Price flags count only when set explicitly.
func buildQuery(args []string, flags *pflag.FlagSet) (model.CanonicalQuery, error) {
	var phrase string
	if len(args) > 0 {
		phrase = args[0]
	}

	attrs, err := parseAttrs(searchAttrs)
	if err != nil {
		return model.CanonicalQuery{}, err
	}

	c := model.Constraints{Currency: searchCurrency, Attributes: attrs}
	if flags.Changed("min-price") {
		c.MinPrice = model.Float(searchMinPrice)
	}
	if flags.Changed("max-price") {
		c.MaxPrice = model.Float(searchMaxPrice)
	}
	return model.NewCanonicalQuery(phrase, searchCategory, c)
}

// parseAttrs reads repeated k=v flags.
func parseAttrs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, eris.Errorf("invalid --attr %q: want key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// renderResult prints the offers table, the provider status table and a
// one-line summary.
func renderResult(w io.Writer, res *model.SourcingResult) error {
	rows := make([][]string, 0, len(res.Offers))
	for i, o := range res.Offers {
		group := ""
		if o.GroupSize > 1 {
			group = strconv.Itoa(o.GroupSize)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			o.Title,
			normalize.FormatMinor(o.PriceMinor, o.Currency) + " " + o.Currency,
			o.Merchant,
			strings.Join(o.Provenance, ","),
			strconv.FormatFloat(o.Score, 'f', 3, 64),
			group,
		})
	}
	if len(rows) > 0 {
		if err := writeTable(w, []string{"#", "Title", "Price", "Merchant", "Providers", "Score", "Group"}, rows); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	status := make([][]string, 0, len(res.ProviderStatus))
	for _, s := range res.ProviderStatus {
		status = append(status, []string{
			s.Provider,
			string(s.Status),
			s.Latency.Round(time.Millisecond).String(),
			strconv.Itoa(s.ResultCount),
			s.Message,
		})
	}
	if len(status) > 0 {
		if err := writeTable(w, []string{"Provider", "Status", "Latency", "Results", "Message"}, status); err != nil {
			return err
		}
	}

	source := "live"
	if res.ServedFromCache {
		source = "cache"
	}
	_, err := fmt.Fprintf(w, "\n%d offers from %d raw results (%d duplicates merged, source: %s, session %s)\n",
		len(res.Offers), res.Stats.RawResults, res.Stats.Normalized-res.Stats.UniqueOffers, source, res.SessionID)
	return err
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchCategory, "category", "", "category hint")
	f.Float64Var(&searchMinPrice, "min-price", 0, "minimum price in major units")
	f.Float64Var(&searchMaxPrice, "max-price", 0, "maximum price in major units")
	f.StringVar(&searchCurrency, "currency", "", "ISO 4217 currency of the price constraints")
	f.StringArrayVar(&searchAttrs, "attr", nil, "attribute constraint as key=value (repeatable)")
	f.BoolVar(&searchForceRefresh, "force-refresh", false, "skip the cache read")
	f.DurationVar(&searchDeadline, "deadline", 0, "session deadline (default from config)")
	f.BoolVar(&searchJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(searchCmd)
}
