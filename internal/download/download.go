// 包 download：数据源文件的暂存区拉取，作为装载阶段的前置离线通道
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"geozones/internal/geo"
	"geozones/internal/logger"
	"geozones/internal/metrics"
)

// Fetcher：带重试与并发上限的下载器
// 背景：不同 URL 之间无顺序依赖，可并行；同一 URL 跨层级共享时只拉取一次
// 约束：瞬时网络错误按 Backoff 翻倍重试 Retries 次；耗尽后该 URL 视为致命并中止整个下载阶段
type Fetcher struct {
	Client  *http.Client
	Dir     string
	Workers int
	Retries int
	Backoff time.Duration
	Log     *slog.Logger
}

func NewFetcher(dir string, workers, retries int, backoff, timeout time.Duration) *Fetcher {
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		Client:  &http.Client{Timeout: timeout},
		Dir:     dir,
		Workers: workers,
		Retries: retries,
		Backoff: backoff,
		Log:     logger.Stage("download"),
	}
}

// URLSet：选中层级所需 URL 的并集，保持首次出现顺序去重
func URLSet(levels []*geo.Level) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range levels {
		for _, u := range l.URLs {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// Filename：URL 在暂存区内的落盘文件名
// 约束：取路径末段并剥离查询串；与 status 的存在性探测保持同一规则
func Filename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}

// FetchAll：并行拉取全部 URL，任一 URL 最终失败即整体失败
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		f.Log.Info("download_nothing_to_do")
		return nil
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return &geo.OpError{Op: "download.mkdir", Kind: geo.KindInternal, Err: err}
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.Workers)
	for _, u := range urls {
		u := u
		eg.Go(func() error { return f.fetch(ctx, u) })
	}
	return eg.Wait()
}

// fetch：单个 URL 的重试循环
func (f *Fetcher) fetch(ctx context.Context, rawURL string) error {
	var lastErr error
	backoff := f.Backoff
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			metrics.DownloadRetriesTotal.Inc()
			f.Log.Warn("download_retry", "url", rawURL, "attempt", attempt, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		lastErr = f.fetchOnce(ctx, rawURL)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	metrics.DownloadFailuresTotal.Inc()
	return &geo.OpError{Op: "download.fetch", Kind: geo.KindTransient,
		Err: fmt.Errorf("%s: %w", rawURL, lastErr)}
}

// fetchOnce：一次拉取尝试，写临时文件成功后原子改名
// 背景：进度按 Content-Length 记录；服务端未给出长度时只记录累计字节数
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status %d", resp.StatusCode)
	}

	name := Filename(rawURL)
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			// 仅记录，落盘名维持 URL 规则以便 status 探测
			f.Log.Debug("download_upstream_name", "url", rawURL, "name", params["filename"])
		}
	}
	dest := filepath.Join(f.Dir, name)
	tmp, err := os.CreateTemp(f.Dir, name+".part-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	f.Log.Info("download_begin", "url", rawURL, "file", name, "size", resp.ContentLength)
	written, err := copyWithProgress(tmp, resp.Body, resp.ContentLength, name, f.Log)
	if err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	metrics.DownloadBytesTotal.Add(float64(written))
	f.Log.Info("download_done", "file", name, "bytes", written)
	return nil
}

// copyWithProgress：分块复制并按进度打点（每 8MiB 一条 debug 日志）
func copyWithProgress(dst io.Writer, src io.Reader, total int64, name string, log *slog.Logger) (int64, error) {
	const step = 8 << 20
	buf := make([]byte, 256<<10)
	var written, next int64 = 0, step
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if written >= next {
				if total > 0 {
					log.Debug("download_progress", "file", name, "read", written, "total", total)
				} else {
					log.Debug("download_progress", "file", name, "read", written)
				}
				next += step
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Present：暂存区内文件是否已存在，供 status 报表使用
func Present(dir, rawURL string) bool {
	_, err := os.Stat(filepath.Join(dir, Filename(rawURL)))
	return err == nil
}
