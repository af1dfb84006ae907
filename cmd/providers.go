package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sells-group/offer-sourcing/internal/api"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List enabled providers with trust tiers and breaker states",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		reg, err := buildRegistry(cfg.Providers)
		if err != nil {
			return err
		}
		// A fresh process has no breaker history, so every circuit reads closed.
		return renderProviders(cmd.OutOrStdout(), api.DescribeProviders(reg.TrustTiers(), nil), providersJSON)
	},
}

func renderProviders(w io.Writer, infos []api.ProviderInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	if len(infos) == 0 {
		_, err := io.WriteString(w, "no providers enabled\n")
		return err
	}
	rows := make([][]string, 0, len(infos))
	for _, p := range infos {
		rows = append(rows, []string{p.Name, strconv.Itoa(p.TrustTier), p.Breaker})
	}
	return writeTable(w, []string{"Provider", "Trust tier", "Breaker"}, rows)
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(providersCmd)
}
