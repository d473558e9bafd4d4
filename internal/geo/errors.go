package geo

import (
	"errors"
	"fmt"
)

// ErrorKind：错误的粗粒度分类，决定退出码与重试策略
type ErrorKind string

const (
	KindConfig    ErrorKind = "config"    // 层级图配置错误，启动期致命
	KindUsage     ErrorKind = "usage"     // 用户输入错误（如未注册的 -l 值）
	KindTransient ErrorKind = "transient" // 网络类瞬时错误，下载阶段重试耗尽后上抛
	KindStore     ErrorKind = "store"     // 存储错误，不自动重试，立即中止当前阶段
	KindInternal  ErrorKind = "internal"
)

// OpError：带操作上下文与分类的错误包装
// 背景：编排器须报告失败发生在哪个层级/阶段/URL；Level 字段携带定位信息
type OpError struct {
	Op    string
	Kind  ErrorKind
	Level string
	Err   error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Level != "" {
		base += fmt.Sprintf(" (level=%s)", e.Level)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind：按分类判断错误，调用方无需依赖具体实现包
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf：取错误的分类；未包装的错误归为 internal
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindInternal
}

// ExitCode：错误分类到进程退出码的映射
// 约束：0 成功；2 配置/用法错误；3 瞬时失败（重试可能成功）；其余 1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var oe *OpError
	if errors.As(err, &oe) {
		switch oe.Kind {
		case KindConfig, KindUsage:
			return 2
		case KindTransient:
			return 3
		}
	}
	return 1
}
