// 包 config：工作目录内 geozones.yml 与环境变量的统一配置入口
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"geozones/internal/geo"
)

// Config：一次管道运行的全部可调参数
// 背景：目录均相对工作目录解析；yml 缺省时使用默认值，环境变量可逐项覆盖
type Config struct {
	Home         string `yaml:"-"`
	DownloadDir  string `yaml:"download_dir"`
	DistDir      string `yaml:"dist_dir"`
	Translations string `yaml:"translations_dir"`

	Downloads struct {
		Workers int      `yaml:"workers"`
		Retries int      `yaml:"retries"`
		Backoff Duration `yaml:"backoff"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"downloads"`

	// 覆盖率报表追踪的属性集合
	Properties []string `yaml:"properties"`

	// 覆盖率缓存有效期（Redis 可用时生效）
	CoverageTTL Duration `yaml:"coverage_ttl"`
}

const fileName = "geozones.yml"

// Load：读取 home 下的 geozones.yml 并套用默认值与环境覆盖
// 约束：文件不存在不算错误；yml 语法错误归为配置错误
func Load(home string) (*Config, error) {
	cfg := &Config{Home: home}
	cfg.DownloadDir = "downloads"
	cfg.DistDir = "dist"
	cfg.Translations = "translations"
	cfg.Downloads.Workers = 4
	cfg.Downloads.Retries = 3
	cfg.Downloads.Backoff = Duration(time.Second)
	cfg.Downloads.Timeout = Duration(5 * time.Minute)
	cfg.Properties = append([]string(nil), geo.TrackedProperties...)
	cfg.CoverageTTL = Duration(5 * time.Minute)

	raw, err := os.ReadFile(filepath.Join(home, fileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, &geo.OpError{Op: "config.load", Kind: geo.KindConfig, Err: err}
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, &geo.OpError{Op: "config.load", Kind: geo.KindConfig, Err: err}
		}
	}

	if v := os.Getenv("GEOZONES_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("GEOZONES_DIST_DIR"); v != "" {
		cfg.DistDir = v
	}
	if v := os.Getenv("GEOZONES_DOWNLOAD_WORKERS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			cfg.Downloads.Workers = n
		}
	}
	if cfg.Downloads.Workers <= 0 {
		cfg.Downloads.Workers = 1
	}
	if cfg.Downloads.Retries < 0 {
		cfg.Downloads.Retries = 0
	}
	return cfg, nil
}

// DownloadPath / DistPath / TranslationsPath：目录的绝对定位
func (c *Config) DownloadPath() string { return filepath.Join(c.Home, c.DownloadDir) }
func (c *Config) DistPath() string     { return filepath.Join(c.Home, c.DistDir) }
func (c *Config) TranslationsPath() string {
	return filepath.Join(c.Home, c.Translations)
}
