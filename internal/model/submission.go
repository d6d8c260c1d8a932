package model

import (
	"bytes"
	"encoding/json"
)

// FlexValue 接收JSON中的字符串、数字或布尔标量，保留其文本形式
//
// null 和缺失字段都视为未设置；对象和数组记为复合值，由校验阶段拒绝。
type FlexValue struct {
	Raw       string
	Set       bool
	Composite bool
}

// Flex 以文本构造一个已设置的值
func Flex(raw string) FlexValue {
	return FlexValue{Raw: raw, Set: true}
}

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = FlexValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v.Raw = s
	case '{', '[':
		v.Raw = string(data)
		v.Composite = true
	default:
		v.Raw = string(data)
	}
	v.Set = true
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	if !v.Set {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw)
}

// ResultSubmission 客户端提交的测速结果
//
// 请求中携带的 id 和 timestamp 不在此结构中，解码时被丢弃。
type ResultSubmission struct {
	RefNumber FlexValue `json:"refNumber"`
	Download  FlexValue `json:"download"`
	Upload    FlexValue `json:"upload"`
	Ping      FlexValue `json:"ping"`
	TestType  FlexValue `json:"testType"`
}

// Fields 按字段名返回提交内容
func (s *ResultSubmission) Fields() map[string]FlexValue {
	return map[string]FlexValue{
		"refNumber": s.RefNumber,
		"download":  s.Download,
		"upload":    s.Upload,
		"ping":      s.Ping,
		"testType":  s.TestType,
	}
}
