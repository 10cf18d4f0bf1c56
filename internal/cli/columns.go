package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

type columnRef struct {
	Ref    string `json:"ref"`
	Letter string `json:"letter"`
	Index  int    `json:"index"`
}

func newColumnsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <ref>...",
		Short: "Convert between column letters and zero-based indexes",
		Long:  `Convert column letters to indexes (AA -> 26) and indexes to letters (27 -> AB).`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]columnRef, 0, len(args))
			for _, arg := range args {
				ref, err := resolveColumn(arg)
				if err != nil {
					return WrapExitError(ExitCommandError, "convert column", err)
				}
				refs = append(refs, ref)
			}

			f := formatter(cmd, opts)
			if f.JSON() {
				return f.WriteJSON(refs)
			}
			for _, r := range refs {
				f.Printf("%s\t%d\n", r.Letter, r.Index)
			}
			return nil
		},
	}
}

func resolveColumn(arg string) (columnRef, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 {
			return columnRef{}, fmt.Errorf("invalid column index %d: negative", n)
		}
		return columnRef{Ref: arg, Letter: core.ColumnLetter(n), Index: n}, nil
	}
	idx, err := core.ColumnIndex(arg)
	if err != nil {
		return columnRef{}, err
	}
	return columnRef{Ref: arg, Letter: core.ColumnLetter(idx), Index: idx}, nil
}
