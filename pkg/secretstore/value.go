// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package secretstore

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// encodeValue wraps msg in an Any so the value type travels with the bytes.
func encodeValue(msg proto.Message) ([]byte, error) {
	a, err := anypb.New(msg)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(a)
}

func decodeValue(data []byte) (proto.Message, error) {
	var a anypb.Any
	if err := proto.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	msg, err := a.UnmarshalNew()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return msg, nil
}

func asString(msg proto.Message) (string, error) {
	v, ok := msg.(*wrapperspb.StringValue)
	if !ok {
		return "", mismatch("string", msg)
	}
	return v.GetValue(), nil
}

func asInt64(msg proto.Message) (int64, error) {
	v, ok := msg.(*wrapperspb.Int64Value)
	if !ok {
		return 0, mismatch("int64", msg)
	}
	return v.GetValue(), nil
}

func asBool(msg proto.Message) (bool, error) {
	v, ok := msg.(*wrapperspb.BoolValue)
	if !ok {
		return false, mismatch("bool", msg)
	}
	return v.GetValue(), nil
}

func asTime(msg proto.Message) (time.Time, error) {
	v, ok := msg.(*timestamppb.Timestamp)
	if !ok {
		return time.Time{}, mismatch("timestamp", msg)
	}
	if err := v.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v.AsTime(), nil
}

func mismatch(want string, got proto.Message) error {
	return fmt.Errorf("%w: want %s, stored %s", ErrTypeMismatch, want, got.ProtoReflect().Descriptor().FullName())
}
