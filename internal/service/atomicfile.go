package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// AtomicReadFileRequest reads a fixed-size block of a File object either
// by byte offset (stream-access) or by record number (record-access)
// (clause 14.1). Only stream-access is implemented; record-access File
// objects are out of scope, matching the object-model library's own
// scope boundary.
type AtomicReadFileRequest struct {
	FileID          tag.ObjectIdentifier
	StartPosition   int32
	RequestedOctets uint32
}

// EncodeAtomicReadFileRequest serializes an AtomicReadFile-Request in its
// stream-access form.
func EncodeAtomicReadFileRequest(r AtomicReadFileRequest) []byte {
	buf := tag.EncodeObjectIdentifier(r.FileID)
	inner := tag.EncodeSigned(int64(r.StartPosition))
	inner = append(inner, tag.EncodeUnsigned(uint64(r.RequestedOctets))...)
	return append(buf, appendOpenClose(0, inner)...)
}

func appendOpenClose(num uint8, inner []byte) []byte {
	buf := tag.EncodeOpeningTag(num)
	buf = append(buf, inner...)
	return append(buf, tag.EncodeClosingTag(num)...)
}

// DecodeAtomicReadFileRequest parses an AtomicReadFile-Request's
// stream-access form.
func DecodeAtomicReadFileRequest(buf []byte) (AtomicReadFileRequest, error) {
	fileID, offset, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("decode atomic-read-file file-identifier: %w", err)
	}
	open, pos, err := tag.DecodeTag(buf, offset)
	if err != nil || !open.IsOpening {
		return AtomicReadFileRequest{}, fmt.Errorf("decode atomic-read-file stream-access: expected opening tag")
	}
	start, pos, err := tag.DecodePrimitive(buf, pos, tag.AppSigned)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("decode atomic-read-file start-position: %w", err)
	}
	count, pos, err := tag.DecodePrimitive(buf, pos, tag.AppUnsigned)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("decode atomic-read-file requested-octet-count: %w", err)
	}
	_ = pos
	return AtomicReadFileRequest{
		FileID:          fileID.(tag.ObjectIdentifier),
		StartPosition:   int32(start.(int64)),
		RequestedOctets: uint32(count.(uint64)),
	}, nil
}

// AtomicReadFileACK is the device's reply: whether the file is now
// exhausted (no more data past this block) and the octets read.
type AtomicReadFileACK struct {
	EndOfFile     bool
	StartPosition int32
	Data          []byte
}

// EncodeAtomicReadFileACK serializes an AtomicReadFile-ACK's
// stream-access form.
func EncodeAtomicReadFileACK(a AtomicReadFileACK) []byte {
	buf := tag.EncodeBoolean(a.EndOfFile)
	inner := tag.EncodeSigned(int64(a.StartPosition))
	inner = append(inner, tag.EncodeOctetString(a.Data)...)
	return append(buf, appendOpenClose(0, inner)...)
}

// DecodeAtomicReadFileACK parses an AtomicReadFile-ACK's stream-access
// form.
func DecodeAtomicReadFileACK(buf []byte) (AtomicReadFileACK, error) {
	eof, offset, err := tag.DecodePrimitive(buf, 0, tag.AppBoolean)
	if err != nil {
		return AtomicReadFileACK{}, fmt.Errorf("decode atomic-read-file-ack end-of-file: %w", err)
	}
	open, pos, err := tag.DecodeTag(buf, offset)
	if err != nil || !open.IsOpening {
		return AtomicReadFileACK{}, fmt.Errorf("decode atomic-read-file-ack stream-access: expected opening tag")
	}
	start, pos, err := tag.DecodePrimitive(buf, pos, tag.AppSigned)
	if err != nil {
		return AtomicReadFileACK{}, fmt.Errorf("decode atomic-read-file-ack start-position: %w", err)
	}
	data, _, err := tag.DecodePrimitive(buf, pos, tag.AppOctetString)
	if err != nil {
		return AtomicReadFileACK{}, fmt.Errorf("decode atomic-read-file-ack file-data: %w", err)
	}
	return AtomicReadFileACK{
		EndOfFile:     eof.(bool),
		StartPosition: int32(start.(int64)),
		Data:          data.([]byte),
	}, nil
}

// AtomicWriteFileRequest writes a block of a File object at a byte offset
// (clause 14.2, stream-access form).
type AtomicWriteFileRequest struct {
	FileID        tag.ObjectIdentifier
	StartPosition int32
	Data          []byte
}

// EncodeAtomicWriteFileRequest serializes an AtomicWriteFile-Request.
func EncodeAtomicWriteFileRequest(r AtomicWriteFileRequest) []byte {
	buf := tag.EncodeObjectIdentifier(r.FileID)
	inner := tag.EncodeSigned(int64(r.StartPosition))
	inner = append(inner, tag.EncodeOctetString(r.Data)...)
	return append(buf, appendOpenClose(0, inner)...)
}

// DecodeAtomicWriteFileRequest parses an AtomicWriteFile-Request.
func DecodeAtomicWriteFileRequest(buf []byte) (AtomicWriteFileRequest, error) {
	fileID, offset, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("decode atomic-write-file file-identifier: %w", err)
	}
	open, pos, err := tag.DecodeTag(buf, offset)
	if err != nil || !open.IsOpening {
		return AtomicWriteFileRequest{}, fmt.Errorf("decode atomic-write-file stream-access: expected opening tag")
	}
	start, pos, err := tag.DecodePrimitive(buf, pos, tag.AppSigned)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("decode atomic-write-file start-position: %w", err)
	}
	data, _, err := tag.DecodePrimitive(buf, pos, tag.AppOctetString)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("decode atomic-write-file file-data: %w", err)
	}
	return AtomicWriteFileRequest{
		FileID:        fileID.(tag.ObjectIdentifier),
		StartPosition: int32(start.(int64)),
		Data:          data.([]byte),
	}, nil
}

// AtomicWriteFileACK reports where the write landed; for stream-access
// this simply echoes the caller's start position.
type AtomicWriteFileACK struct {
	StartPosition int32
}

// EncodeAtomicWriteFileACK serializes an AtomicWriteFile-ACK.
func EncodeAtomicWriteFileACK(a AtomicWriteFileACK) []byte {
	return tag.EncodeContextSigned(0, int64(a.StartPosition))
}

// DecodeAtomicWriteFileACK parses an AtomicWriteFile-ACK.
func DecodeAtomicWriteFileACK(buf []byte) (AtomicWriteFileACK, error) {
	start, _, err := decodeContextSigned(buf, 0, 0)
	if err != nil {
		return AtomicWriteFileACK{}, fmt.Errorf("decode atomic-write-file-ack start-position: %w", err)
	}
	return AtomicWriteFileACK{StartPosition: int32(start)}, nil
}
