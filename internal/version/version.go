// 包 version：构建期注入的版本信息
package version

// Commit 由构建命令通过 -ldflags "-X geozones/internal/version.Commit=..." 注入
var Commit = "dev"
