package cli

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

func newRecordsCommand(opts *RootOptions) *cobra.Command {
	var (
		sourceName string
		individual bool
	)

	cmd := &cobra.Command{
		Use:   "records <project-id>",
		Short: "List stored records of a project",
		Long: `List the aggregate rows (default) or individual records stored for a
project, optionally only those of one source name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			f := formatter(cmd, opts)
			if individual {
				recs, err := app.Store.ListIndividuals(cmd.Context(), args[0], sourceName)
				if err != nil {
					return WrapExitError(ExitFailure, "list records", err)
				}
				if f.JSON() {
					return f.WriteJSON(nonNil(recs))
				}
				return f.Table([]string{"SOURCE", "RECORD", "DATE", "TYPE", "AMOUNT", "STATUS"}, individualRows(recs))
			}

			recs, err := app.Store.ListAggregates(cmd.Context(), args[0], sourceName)
			if err != nil {
				return WrapExitError(ExitFailure, "list records", err)
			}
			if f.JSON() {
				return f.WriteJSON(nonNil(recs))
			}
			return f.Table([]string{"SOURCE", "DATE", "IMPRESSIONS", "CLICKS", "SPEND", "CONVERSIONS", "REVENUE", "LEADS", "REACH", "CUSTOM"}, aggregateRows(recs))
		},
	}

	cmd.Flags().StringVarP(&sourceName, "source", "s", "", "only this source name")
	cmd.Flags().BoolVarP(&individual, "individual", "i", false, "list individual records instead of aggregates")
	return cmd
}

func aggregateRows(recs []core.AggregateRecord) [][]string {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{
			r.SourceName, r.Date,
			num(r.Impressions), num(r.Clicks), num(r.AmountSpent),
			num(r.Conversions), num(r.Revenue), num(r.Leads), num(r.Reach),
			customKeys(r.CustomData),
		}
	}
	return rows
}

func individualRows(recs []core.IndividualRecord) [][]string {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		status := ""
		if r.Status != nil {
			status = *r.Status
		}
		rows[i] = []string{r.SourceName, r.RecordID, r.Date, r.RecordType, num(r.Amount), status}
	}
	return rows
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func customKeys(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
