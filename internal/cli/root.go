// 包 cli：geozones 命令行入口；每个子命令对应管道的一个阶段
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"geozones/internal/geo"
	"geozones/internal/logger"
	"geozones/internal/version"
)

// Execute：解析并执行命令，按错误类别映射退出码
// 约束：用法/配置错误退出 2，瞬态错误退出 3，其余失败退出 1
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "geozones:", err)
		os.Exit(geo.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var levels []string
	var home string

	cmd := &cobra.Command{
		Use:           "geozones",
		Short:         "Build a hierarchical geographic reference dataset",
		Version:       version.Commit,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defHome := os.Getenv("GEOZONES_HOME")
	if defHome == "" {
		defHome = "."
	}
	cmd.PersistentFlags().StringArrayVarP(&levels, "level", "l", nil,
		"restrict to these level ids (repeatable; dependencies are pulled in)")
	cmd.PersistentFlags().StringVarP(&home, "home", "H", defHome,
		"working directory (env GEOZONES_HOME)")

	// 旗标解析失败按用法错误处理，退出码与其余用法错误一致
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &geo.OpError{Op: "cli", Kind: geo.KindUsage, Err: err}
	})

	opts := func() rootOptions { return rootOptions{Home: home, Levels: levels} }
	cmd.AddCommand(
		downloadCmd(opts),
		loadCmd(opts),
		aggregateCmd(opts),
		postprocessCmd(opts),
		distCmd(opts),
		fullCmd(opts),
		statusCmd(opts),
	)
	return cmd
}

// rootOptions：持久旗标的快照，在 RunE 执行时取值
type rootOptions struct {
	Home   string
	Levels []string
}

func stageLog(name string) {
	logger.L().Debug("cli_command", "command", name)
}
