package rpc

import (
	"fmt"
)

// Message is implemented by the intents and their results.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec is the grpc codec for Message values. It's named "proto" so requests keep
// the application/grpc+proto content type the services expect.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T: not an rpc message", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T: not an rpc message", v)
	}
	return m.Unmarshal(data)
}

func (Codec) Name() string {
	return "proto"
}
