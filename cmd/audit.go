package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/visibility-cli/internal/audit"
	"github.com/sells-group/visibility-cli/internal/model"
)

var (
	auditBrandFile        string
	auditBrandName        string
	auditAliases          []string
	auditQueriesFile      string
	auditBudget           int
	auditIntents          []string
	auditIncludeResponses bool
	auditJSON             bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a brand visibility audit",
	Long:  "Runs queries against the configured answer providers and reports how often the brand is cited. Queries come from --queries, or are generated from --budget.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		brand, err := resolveBrand()
		if err != nil {
			return err
		}

		req := audit.Request{
			Brand:            brand,
			Budget:           auditBudget,
			IncludeResponses: auditIncludeResponses,
		}
		if auditQueriesFile != "" {
			req.Queries, err = loadQueriesFile(auditQueriesFile)
			if err != nil {
				return err
			}
		}
		for _, in := range auditIntents {
			req.Intents = append(req.Intents, model.Intent(in))
		}
		if req.Budget == 0 {
			req.Budget = cfg.Audit.Budget
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runner, cleanup, err := buildRunner(ctx, st, brand)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := runner.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		if auditJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		formatAuditReport(os.Stdout, brand, result)
		return nil
	},
}

func resolveBrand() (model.BrandIdentity, error) {
	if auditBrandFile != "" {
		return loadBrandFile(auditBrandFile)
	}
	brand := model.BrandIdentity{Name: auditBrandName, Aliases: auditAliases}
	if err := brand.Validate(); err != nil {
		return brand, eris.Wrap(err, "either --brand or --brand-file is required")
	}
	return brand, nil
}

// formatAuditReport writes a human-readable visibility report.
func formatAuditReport(out io.Writer, brand model.BrandIdentity, result *audit.Result) {
	fmt.Fprintf(out, "Visibility audit for %s (run %s)\n\n", brand.Name, truncateID(result.RunID))
	fmt.Fprintf(out, "Overall visibility: %.1f%% across %d queries (%d cited at least once",
		result.Visibility.AveragePercentage,
		result.Visibility.TotalQueries,
		result.Visibility.QueriesWithCitations,
	)
	if result.FailedCount > 0 {
		fmt.Fprintf(out, ", %d failed retrieval", result.FailedCount)
	}
	fmt.Fprintf(out, ")\n\n")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tASKED\tCITED\tRATE\tMENTIONS")
	for _, id := range sortedKeys(result.Visibility.Providers) {
		ps := result.Visibility.Providers[id]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%d\n",
			id, ps.QueriesAsked, ps.QueriesCited, ps.CitationRate, ps.TotalMentions)
	}
	w.Flush()

	if len(result.Visibility.Intents) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INTENT\tQUERIES\tCITED\tAVG VISIBILITY")
		intents := make([]string, 0, len(result.Visibility.Intents))
		for in := range result.Visibility.Intents {
			intents = append(intents, string(in))
		}
		sort.Strings(intents)
		for _, in := range intents {
			is := result.Visibility.Intents[model.Intent(in)]
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n",
				in, is.TotalQueries, is.QueriesWithCitations, is.AveragePercentage)
		}
		w.Flush()
	}
}

func sortedKeys(m map[string]model.ProviderStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	auditCmd.Flags().StringVar(&auditBrandFile, "brand-file", "", "YAML file with the brand identity (name, aliases)")
	auditCmd.Flags().StringVar(&auditBrandName, "brand", "", "brand name to audit")
	auditCmd.Flags().StringSliceVar(&auditAliases, "alias", nil, "brand alias that counts as a mention (repeatable)")
	auditCmd.Flags().StringVar(&auditQueriesFile, "queries", "", "YAML file with pre-built queries; omit to generate")
	auditCmd.Flags().IntVar(&auditBudget, "budget", 0, "number of queries to generate (default from config)")
	auditCmd.Flags().StringSliceVar(&auditIntents, "intent", nil, "restrict generation to these intents (repeatable)")
	auditCmd.Flags().BoolVar(&auditIncludeResponses, "include-responses", false, "keep full provider responses in the result")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(auditCmd)
}
