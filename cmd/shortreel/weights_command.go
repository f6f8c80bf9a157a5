package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"shortreel/internal/apiclient"
	"shortreel/internal/queue"
	"shortreel/internal/scoring"
)

func newWeightsCommand(ctx *commandContext) *cobra.Command {
	var channelID string
	var report bool

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show learned feature weights from the scoring model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scope := ""
			if channelID != "" {
				scope = scoring.ScopeFor(cfg, channelID)
			}

			var rows []scoring.FeatureWeight
			err = ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				if client != nil {
					resp, err := client.Weights(cmd.Context(), scope)
					if err != nil {
						return err
					}
					rows = resp.Weights
					return nil
				}
				model := scoring.NewModel(cfg)
				if err := model.Load(cfg.Scoring.SnapshotFile); err != nil {
					return err
				}
				rows = model.Report()
				if scope != "" {
					filtered := rows[:0]
					for _, row := range rows {
						if row.Scope == scope {
							filtered = append(filtered, row)
						}
					}
					rows = filtered
				}
				return nil
			})
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No weights learned yet")
				return nil
			}

			if report {
				printWeightsReport(cmd, rows)
				return nil
			}

			sort.Slice(rows, func(i, j int) bool {
				if rows[i].Scope != rows[j].Scope {
					return rows[i].Scope < rows[j].Scope
				}
				return rows[i].Weight > rows[j].Weight
			})
			tableRows := make([][]string, 0, len(rows))
			for _, row := range rows {
				tableRows = append(tableRows, []string{
					row.Scope,
					row.Feature,
					fmt.Sprintf("%.3f", row.Weight),
					fmt.Sprintf("%d", row.Samples),
				})
			}
			table := renderTable(
				[]string{"Scope", "Feature", "Weight", "Samples"},
				tableRows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "Restrict to the channel's scoring scope")
	cmd.Flags().BoolVar(&report, "report", false, "Summarize per-scope performance instead of listing every feature")
	return cmd
}

// printWeightsReport renders a per-scope summary: sample volume and the
// strongest learned features.
func printWeightsReport(cmd *cobra.Command, rows []scoring.FeatureWeight) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	byScope := make(map[string][]scoring.FeatureWeight)
	for _, row := range rows {
		byScope[row.Scope] = append(byScope[row.Scope], row)
	}
	scopes := make([]string, 0, len(byScope))
	for scope := range byScope {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	for i, scope := range scopes {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		for _, line := range renderSectionHeader("Scope "+scope, colorize) {
			fmt.Fprintln(stdout, line)
		}
		features := byScope[scope]
		sort.Slice(features, func(a, b int) bool { return features[a].Weight > features[b].Weight })

		samples := 0
		for _, feature := range features {
			samples += feature.Samples
		}
		fmt.Fprintln(stdout, renderStatusLine("Features", statusInfo, fmt.Sprintf("%d", len(features)), colorize))
		fmt.Fprintln(stdout, renderStatusLine("Samples", statusInfo, fmt.Sprintf("%d", samples), colorize))

		top := features
		if len(top) > 5 {
			top = top[:5]
		}
		for _, feature := range top {
			kind := statusOK
			if feature.Weight < 0.5 {
				kind = statusWarn
			}
			detail := fmt.Sprintf("%.3f over %d samples", feature.Weight, feature.Samples)
			fmt.Fprintln(stdout, renderStatusLine(feature.Feature, kind, detail, colorize))
		}
	}
}
