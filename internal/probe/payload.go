package probe

import (
	"io"
)

// ReferenceSize 下载测试的参考大小 (1 MiB)
const ReferenceSize = 1024 * 1024

// Payload 下载测试返回的固定数据块，启动时生成一次，之后只读
type Payload struct {
	data []byte
}

// NewPayload 创建指定大小的确定性数据块
func NewPayload(size int) *Payload {
	if size < 0 {
		size = 0
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return &Payload{data: data}
}

// Size 数据块字节数
func (p *Payload) Size() int {
	return len(p.data)
}

// Bytes 返回数据块，调用方不得修改
func (p *Payload) Bytes() []byte {
	return p.data
}

// Drain 读取并丢弃全部内容，返回读取的字节数
func Drain(r io.Reader) (int64, error) {
	if r == nil {
		return 0, nil
	}
	return io.Copy(io.Discard, r)
}
