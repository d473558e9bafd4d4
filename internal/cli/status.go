package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"geozones/internal/pipeline"
)

func statusCmd(opts func() rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report levels, staged downloads and property coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("status")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Pipe.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st *pipeline.Status) {
	fmt.Fprintf(w, "home: %s\n", st.Home)

	fmt.Fprintln(w, "\nlevels:")
	for _, l := range st.Levels {
		fmt.Fprintf(w, "  %-24s %s\n", l.ID, l.Label)
	}

	fmt.Fprintln(w, "\ndownloads:")
	for _, d := range st.Downloads {
		mark := " "
		if d.Present {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, d.File)
	}

	fmt.Fprintln(w, "\nzones:")
	for _, lc := range st.Coverage.Levels {
		fmt.Fprintf(w, "  %s: %d\n", lc.ID, lc.Count)
		for _, p := range lc.Props {
			fmt.Fprintf(w, "    %s: %d/%d\n", p.Name, p.Count, p.Total)
		}
	}
	fmt.Fprintf(w, "  TOTAL: %d\n", st.Coverage.Total)
	for _, p := range st.Coverage.Props {
		fmt.Fprintf(w, "    %s: %d/%d\n", p.Name, p.Count, p.Total)
	}
}
