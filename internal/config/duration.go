package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration：可从 "30s"/"5m" 形式的 yml 标量解析的时长
// 背景：yaml.v3 不支持直接解码 time.Duration
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
