// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// maxMessageSize bounds the length prefix so a misbehaving peer cannot
// make the worker allocate an unbounded buffer.
const maxMessageSize = 256 << 20 // 256MiB, generous enough for a template bundle

var msgpackHandle = &codec.MsgpackHandle{}

// SendMessage frames msg as a 4-byte big-endian length prefix followed by
// its msgpack encoding, and writes it to w.
func SendMessage(w io.Writer, msg Message) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(&msg); err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-delimited, msgpack-encoded Message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, fmt.Errorf("reading length prefix: %w", err)
	}

	size := binary.BigEndian.Uint32(lenPrefix[:])
	if size > maxMessageSize {
		return Message{}, fmt.Errorf("message of %d bytes exceeds maximum of %d", size, maxMessageSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("reading message body: %w", err)
	}

	var msg Message
	dec := codec.NewDecoder(bytes.NewReader(body), msgpackHandle)
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return msg, nil
}
