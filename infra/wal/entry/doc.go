// Package entry is the inbound event journal: an append-only, segmented log
// of every MBO event in the order it was applied to the book.
//
// Frame layout, big endian:
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// The crc covers header and payload. Event payloads are protobuf wire
// encoded, see EncodeEvent. Segments are named segment-NNNNNN.wal and are
// read back in name order.
package entry
