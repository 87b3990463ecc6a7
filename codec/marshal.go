package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// JSONMarshaler encodes values with encoding/json.
type JSONMarshaler[V any] struct{}

func (JSONMarshaler[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONMarshaler[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// ProtoMarshaler encodes protobuf messages. New must return a fresh, empty
// message to unmarshal into.
type ProtoMarshaler[M proto.Message] struct {
	New func() M
}

func (p ProtoMarshaler[M]) Marshal(m M) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

func (p ProtoMarshaler[M]) Unmarshal(data []byte) (M, error) {
	if p.New == nil {
		var zero M
		return zero, fmt.Errorf("proto marshaler has no message constructor")
	}
	m := p.New()
	if err := proto.Unmarshal(data, m); err != nil {
		return m, err
	}
	return m, nil
}
