// 程序入口：只负责环境与日志初始化，命令分发在 internal/cli
package main

import (
	"os"

	"github.com/joho/godotenv"

	"geozones/internal/cli"
	"geozones/internal/logger"
	"geozones/internal/metrics"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	l.Debug("log_init_ok")

	// 长任务（download/full）期间可选暴露指标
	metrics.Serve(os.Getenv("METRICS_ADDR"))

	cli.Execute()
}
