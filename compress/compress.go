// Package compress provides optional payload compression for a
// communicator's outbound framed buffers, mirroring the teacher's
// transport.Extra.Compression / initCompression option. The spec is
// silent on compression (§9 lists no such requirement); this is pure
// enrichment. No communicator in this module calls it, and no config
// key selects it.
/*
 * Copyright (c) 2024, Relaynet Project contributors. All rights reserved.
 */
package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"
)

// None disables compression. LZ4 enables it.
const (
	None = ""
	LZ4  = "lz4"
)

// Compress returns data unchanged for None, or LZ4-compressed for LZ4.
func Compress(kind string, data []byte) ([]byte, error) {
	switch kind {
	case None, "":
		return data, nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, errUnknownKind(kind)
	}
}

// Decompress is Compress's inverse.
func Decompress(kind string, data []byte) ([]byte, error) {
	switch kind {
	case None, "":
		return data, nil
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return nil, errUnknownKind(kind)
	}
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "compress: unknown kind " + string(e) }
