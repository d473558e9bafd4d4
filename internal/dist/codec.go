package dist

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// encoder：导出文档的流式编码器
// 背景：json 产出单个数组文件，msgpack 产出首尾相接的记录流（与下游消费约定一致）
type encoder interface {
	Encode(doc map[string]any) error
	Close() error
}

func newEncoder(w io.Writer, opts Options) encoder {
	if opts.Format == FormatMsgpack {
		return &msgpackEncoder{enc: msgpack.NewEncoder(w)}
	}
	return &jsonEncoder{w: bufio.NewWriter(w), pretty: opts.Pretty}
}

type jsonEncoder struct {
	w      *bufio.Writer
	pretty bool
	opened bool
}

func (e *jsonEncoder) Encode(doc map[string]any) error {
	var raw []byte
	var err error
	if e.pretty {
		raw, err = json.MarshalIndent(doc, "    ", "    ")
	} else {
		raw, err = json.Marshal(doc)
	}
	if err != nil {
		return err
	}
	sep := ","
	if !e.opened {
		sep = "["
		e.opened = true
	}
	if e.pretty {
		sep += "\n    "
	}
	if _, err := e.w.WriteString(sep); err != nil {
		return err
	}
	_, err = e.w.Write(raw)
	return err
}

func (e *jsonEncoder) Close() error {
	// 空结果集也要产出合法的 json 数组
	if !e.opened {
		if _, err := e.w.WriteString("["); err != nil {
			return err
		}
	}
	suffix := "]"
	if e.pretty {
		suffix = "\n]"
	}
	if _, err := e.w.WriteString(suffix); err != nil {
		return err
	}
	return e.w.Flush()
}

type msgpackEncoder struct {
	enc *msgpack.Encoder
}

func (e *msgpackEncoder) Encode(doc map[string]any) error { return e.enc.Encode(doc) }
func (e *msgpackEncoder) Close() error                    { return nil }
