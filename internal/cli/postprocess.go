package cli

import (
	"github.com/spf13/cobra"
)

func postprocessCmd(opts func() rootOptions) *cobra.Command {
	var only string

	c := &cobra.Command{
		Use:   "postprocess",
		Short: "Run the enrichment steps of the selected levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("postprocess")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Pipe.Postprocess(cmd.Context(), only)
		},
	}
	c.Flags().StringVar(&only, "only", "", "run a single named step, skipping the others")
	return c
}
