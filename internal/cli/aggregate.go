package cli

import (
	"github.com/spf13/cobra"
)

func aggregateCmd(opts func() rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Build parent-level zones from their children, leaf to root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("aggregate")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			_, err = a.Pipe.Aggregate(cmd.Context())
			return err
		},
	}
}
