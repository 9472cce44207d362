package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNoAction is returned when a decoded envelope carries no action
var ErrNoAction = errors.New("ipc: envelope has no action")

// Marshal encodes the envelope as a protobuf Struct
func Marshal(msg *Message) ([]byte, error) {
	fields := map[string]any{"action": msg.Action}
	if msg.Target != "" {
		fields["target"] = msg.Target
	}
	if msg.Body != nil {
		body, err := normalize(msg.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body of %s: %w", msg.Action, err)
		}
		fields["body"] = body
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Action, err)
	}
	return proto.Marshal(s)
}

// Unmarshal decodes an envelope produced by Marshal
func Unmarshal(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	fields := s.AsMap()
	action, _ := fields["action"].(string)
	if action == "" {
		return nil, ErrNoAction
	}

	msg := &Message{Action: action}
	msg.Target, _ = fields["target"].(string)
	msg.Body, _ = fields["body"].(map[string]any)
	return msg, nil
}

// normalize converts a body into the JSON-like shape structpb accepts.
// Bodies that already fit are returned untouched.
func normalize(body map[string]any) (map[string]any, error) {
	if _, err := structpb.NewStruct(body); err == nil {
		return body, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
