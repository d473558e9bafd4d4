package cli

import (
	"github.com/spf13/cobra"
)

func loadCmd(opts func() rootOptions) *cobra.Command {
	var drop bool

	c := &cobra.Command{
		Use:   "load",
		Short: "Parse staged files and upsert zones into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("load")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			_, err = a.Pipe.Load(cmd.Context(), drop)
			return err
		},
	}
	c.Flags().BoolVar(&drop, "drop", false, "drop the zone collection before loading")
	return c
}
