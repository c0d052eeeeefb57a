package redis

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// payloadField 是 Stream entry 中存放序列化資料的欄位
const payloadField = "payload"

var (
	ErrPointerType    = errors.New("pointer type is not allowed")
	ErrMissingPayload = errors.New("payload field not found or invalid type")
)

// EncodeEntry 以 msgpack 序列化資料，回傳可直接寫入 XADD 的欄位
func EncodeEntry[T any](data T) (map[string]any, error) {
	if t := reflect.TypeOf(data); t != nil && t.Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return map[string]any{payloadField: encoded}, nil
}

// DecodeEntry 將 XREAD 取得的欄位還原為資料
// map[string]any 內的整數一律還原為 int64，浮點數為 float64
func DecodeEntry[T any](values map[string]any) (T, error) {
	var result T
	if t := reflect.TypeOf(result); t != nil && t.Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	raw, ok := values[payloadField].(string)
	if !ok {
		return result, ErrMissingPayload
	}
	dec := msgpack.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return result, nil
}
