// Package hash provides the CRC32-Castagnoli checksums used to guard
// shard payloads against truncation and bit rot. Castagnoli rather
// than IEEE because Go's crc32 package backs it with hardware
// instructions on amd64 and arm64.
package hash
