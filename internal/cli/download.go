package cli

import (
	"github.com/spf13/cobra"
)

func downloadCmd(opts func() rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch the source files for the selected levels into the staging area",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("download")
			a, err := buildApp(opts(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Pipe.Download(cmd.Context())
		},
	}
}
