package converter

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/memohai/streambind/internal/message"
	"github.com/memohai/streambind/internal/mimetype"
)

// Defaults returns the built-in converter set in its canonical order.
// Earlier converters win ties during selection.
func Defaults() []Converter {
	return []Converter{
		&jsonMapConverter{},
		&jsonStructConverter{},
		&textConverter{},
		&bytesConverter{},
		&gobConverter{},
	}
}

// jsonMapConverter maps JSON text to the schema-less map representation
// and back. This is the untyped structured-text conversion.
type jsonMapConverter struct{}

func (c *jsonMapConverter) Name() string { return "json-map" }

func (c *jsonMapConverter) Handles(ct mimetype.Type) bool {
	return mimetype.JSON.Includes(ct)
}

func (c *jsonMapConverter) CanRead(ct mimetype.Type, target TypeTag) bool {
	return target.Name == MapTag.Name && mimetype.JSON.Includes(ct)
}

func (c *jsonMapConverter) Read(msg *message.Message, _ TypeTag) (any, error) {
	return payloadToMap(msg.Payload())
}

func (c *jsonMapConverter) CanWrite(payload any, ct mimetype.Type) bool {
	_, ok := payload.(map[string]any)
	return ok && mimetype.JSON.Includes(ct)
}

func (c *jsonMapConverter) Write(payload any, ct mimetype.Type) (any, mimetype.Type, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, mimetype.Type{}, err
	}
	return raw, ct, nil
}

// jsonStructConverter maps JSON text (or an in-process map) to a
// registered struct tag and back. Reads are strict: payload fields that do
// not exist on the target are a structural mismatch, which is what lets
// multiple listeners on one channel be told apart by payload shape.
type jsonStructConverter struct{}

func (c *jsonStructConverter) Name() string { return "json-struct" }

func (c *jsonStructConverter) Handles(ct mimetype.Type) bool {
	return mimetype.JSON.Includes(ct) || ct.IsStruct()
}

func (c *jsonStructConverter) CanRead(ct mimetype.Type, target TypeTag) bool {
	if !target.Structural {
		return false
	}
	return mimetype.JSON.Includes(ct) || ct.IsZero() || ct.IsStruct()
}

func (c *jsonStructConverter) Read(msg *message.Message, target TypeTag) (any, error) {
	fields, err := payloadToMap(msg.Payload())
	if err != nil {
		return nil, err
	}
	out := target.New()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "json",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jsonStructConverter) CanWrite(payload any, ct mimetype.Type) bool {
	return isStructLike(payload) && mimetype.JSON.Includes(ct)
}

func (c *jsonStructConverter) Write(payload any, ct mimetype.Type) (any, mimetype.Type, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, mimetype.Type{}, err
	}
	return raw, ct, nil
}

// textConverter coerces byte payloads to text and serializes payloads to
// text/plain. Non-string payloads are rendered the way they print.
type textConverter struct{}

func (c *textConverter) Name() string { return "text" }

func (c *textConverter) Handles(ct mimetype.Type) bool {
	return mimetype.TextPlain.Includes(ct)
}

func (c *textConverter) CanRead(_ mimetype.Type, target TypeTag) bool {
	return target.Name == StringTag.Name
}

func (c *textConverter) Read(msg *message.Message, _ TypeTag) (any, error) {
	switch p := msg.Payload().(type) {
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	default:
		return nil, fmt.Errorf("payload %T is not text", p)
	}
}

func (c *textConverter) CanWrite(payload any, ct mimetype.Type) bool {
	return payload != nil && mimetype.TextPlain.Includes(ct)
}

func (c *textConverter) Write(payload any, ct mimetype.Type) (any, mimetype.Type, error) {
	switch p := payload.(type) {
	case string:
		return p, ct, nil
	case []byte:
		return string(p), ct, nil
	case fmt.Stringer:
		return p.String(), ct, nil
	default:
		return fmt.Sprint(p), ct, nil
	}
}

// bytesConverter coerces text payloads to byte sequences and back.
type bytesConverter struct{}

func (c *bytesConverter) Name() string { return "bytes" }

func (c *bytesConverter) Handles(ct mimetype.Type) bool {
	return mimetype.OctetStream.Includes(ct)
}

func (c *bytesConverter) CanRead(_ mimetype.Type, target TypeTag) bool {
	return target.Name == BytesTag.Name
}

func (c *bytesConverter) Read(msg *message.Message, _ TypeTag) (any, error) {
	switch p := msg.Payload().(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return []byte(p), nil
	case string:
		return []byte(p), nil
	default:
		return nil, fmt.Errorf("payload %T cannot be coerced to bytes", p)
	}
}

func (c *bytesConverter) CanWrite(payload any, ct mimetype.Type) bool {
	if !mimetype.OctetStream.Includes(ct) {
		return false
	}
	switch payload.(type) {
	case []byte, string, json.RawMessage:
		return true
	default:
		return false
	}
}

func (c *bytesConverter) Write(payload any, ct mimetype.Type) (any, mimetype.Type, error) {
	switch p := payload.(type) {
	case []byte:
		return p, ct, nil
	case json.RawMessage:
		return []byte(p), ct, nil
	case string:
		return []byte(p), ct, nil
	default:
		return nil, mimetype.Type{}, fmt.Errorf("payload %T cannot be coerced to bytes", p)
	}
}

// gobConverter round-trips typed payloads through gob encoding for opaque
// binary transport.
type gobConverter struct{}

func (c *gobConverter) Name() string { return "gob" }

func (c *gobConverter) Handles(ct mimetype.Type) bool {
	return mimetype.GoBinary.Includes(ct)
}

func (c *gobConverter) CanRead(ct mimetype.Type, target TypeTag) bool {
	return mimetype.GoBinary.Includes(ct) && !target.IsZero()
}

func (c *gobConverter) Read(msg *message.Message, target TypeTag) (any, error) {
	var raw []byte
	switch p := msg.Payload().(type) {
	case []byte:
		raw = p
	case json.RawMessage:
		raw = []byte(p)
	default:
		return nil, fmt.Errorf("payload %T is not a binary-encoded value", p)
	}
	out := target.New()
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gobConverter) CanWrite(payload any, ct mimetype.Type) bool {
	return payload != nil && mimetype.GoBinary.Includes(ct)
}

func (c *gobConverter) Write(payload any, ct mimetype.Type) (any, mimetype.Type, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, mimetype.Type{}, err
	}
	return buf.Bytes(), ct, nil
}

func isStructLike(payload any) bool {
	if payload == nil {
		return false
	}
	t := reflect.TypeOf(payload)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func payloadToMap(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case map[string]any:
		return p, nil
	case []byte:
		return unmarshalMap(p)
	case json.RawMessage:
		return unmarshalMap(p)
	case string:
		return unmarshalMap([]byte(p))
	default:
		return nil, fmt.Errorf("payload %T is not structured text", p)
	}
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
