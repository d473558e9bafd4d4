package cli

import (
	"github.com/spf13/cobra"
)

func fullCmd(opts func() rootOptions) *cobra.Command {
	var drop bool
	var flags distFlags

	c := &cobra.Command{
		Use:   "full",
		Short: "Run download, load, aggregate, postprocess and dist in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("full")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Pipe.Full(cmd.Context(), drop, flags.options(a))
		},
	}
	c.Flags().BoolVar(&drop, "drop", false, "drop the zone collection before loading")
	flags.register(c)
	return c
}
