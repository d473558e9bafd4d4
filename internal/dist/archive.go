package dist

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"geozones/internal/geo"
	"geozones/internal/logger"
)

// ArchiveName：数据归档命名，split 与编码写进文件名供下游直接发现
func ArchiveName(split bool, format string) string {
	if split {
		return fmt.Sprintf("geozones-split-%s.tar.xz", format)
	}
	return fmt.Sprintf("geozones-%s.tar.xz", format)
}

// bundle：产出翻译归档与数据归档，返回归档文件名
// 背景：翻译目录单独发布一份，同时也随数据归档内嵌一份（下游两种消费方式并存）
func bundle(files []string, opts Options) ([]string, error) {
	log := logger.Stage("dist")
	var out []string

	hasTranslations := false
	if opts.Translations != "" {
		if st, err := os.Stat(opts.Translations); err == nil && st.IsDir() {
			hasTranslations = true
		} else {
			log.Warn("translations_missing", "dir", opts.Translations)
		}
	}

	if hasTranslations {
		name := "geozones-translations.tar.xz"
		if err := writeArchive(filepath.Join(opts.Dir, name), func(tw *tar.Writer) error {
			return addDir(tw, opts.Translations, "translations")
		}); err != nil {
			return out, err
		}
		log.Info("dist_archive", "file", name)
		out = append(out, name)
	}

	name := ArchiveName(opts.Split, opts.Format)
	if err := writeArchive(filepath.Join(opts.Dir, name), func(tw *tar.Writer) error {
		for _, f := range files {
			if err := addFile(tw, filepath.Join(opts.Dir, f), f); err != nil {
				return err
			}
		}
		if hasTranslations {
			return addDir(tw, opts.Translations, "translations")
		}
		return nil
	}); err != nil {
		return out, err
	}
	log.Info("dist_archive", "file", name)
	out = append(out, name)
	return out, nil
}

// writeArchive：组装单个 tar.xz
func writeArchive(path string, fill func(*tar.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return &geo.OpError{Op: "dist.archive", Kind: geo.KindInternal, Err: err}
	}
	defer f.Close()
	xw, err := xz.NewWriter(f)
	if err != nil {
		return &geo.OpError{Op: "dist.archive", Kind: geo.KindInternal, Err: err}
	}
	tw := tar.NewWriter(xw)
	if err := fill(tw); err != nil {
		return &geo.OpError{Op: "dist.archive", Kind: geo.KindInternal, Err: err}
	}
	if err := tw.Close(); err != nil {
		return &geo.OpError{Op: "dist.archive", Kind: geo.KindInternal, Err: err}
	}
	if err := xw.Close(); err != nil {
		return &geo.OpError{Op: "dist.archive", Kind: geo.KindInternal, Err: err}
	}
	return f.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

func addDir(tw *tar.Writer, dir, prefix string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addFile(tw, path, filepath.ToSlash(filepath.Join(prefix, rel)))
	})
}
