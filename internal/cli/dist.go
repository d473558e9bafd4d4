package cli

import (
	"github.com/spf13/cobra"

	"geozones/internal/dist"
)

// distFlags：dist 与 full 共享的导出旗标
type distFlags struct {
	pretty     bool
	split      bool
	noCompress bool
	format     string
	keys       []string
}

func (f *distFlags) register(c *cobra.Command) {
	c.Flags().BoolVar(&f.pretty, "pretty", false, "indent JSON output (json format only)")
	c.Flags().BoolVar(&f.split, "split", false, "write one file per level instead of a single file")
	c.Flags().BoolVar(&f.noCompress, "no-compress", false, "skip the tar.xz bundles")
	c.Flags().StringVar(&f.format, "format", dist.FormatJSON, "serialization format: json|msgpack")
	c.Flags().StringSliceVar(&f.keys, "keys", nil, "restrict exported zone attributes to these keys")
}

func (f *distFlags) options(a *app) dist.Options {
	return dist.Options{
		Dir:          a.Cfg.DistPath(),
		Translations: a.Cfg.TranslationsPath(),
		Pretty:       f.pretty,
		Split:        f.split,
		Compress:     !f.noCompress,
		Format:       f.format,
		Keys:         f.keys,
	}
}

func distCmd(opts func() rootOptions) *cobra.Command {
	var flags distFlags

	c := &cobra.Command{
		Use:   "dist",
		Short: "Export the zone dataset as distributable files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stageLog("dist")
			a, err := buildApp(opts(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			_, err = a.Pipe.Dist(cmd.Context(), flags.options(a))
			return err
		},
	}
	flags.register(c)
	return c
}
