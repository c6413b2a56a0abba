// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/natelust/reups/internal/stack"
	"github.com/natelust/reups/pkg/product"
)

// On-disk layout, all integers little-endian:
//
//	magic    [8]byte  "REUPSCSH"
//	schema   uint16   currently 1
//	fprint   uint64   stack fingerprint at write time
//	root     string   stack root path
//	sections 3 ×      (uint32 byte length, payload)
//	checksum uint64   xxhash64 of all section bytes
//
// Strings are uint32 length + UTF-8 bytes. The three sections are
// products, versions, and tags. Any structural mismatch — short file,
// bad magic, unknown schema, checksum failure — makes the cache count
// as absent; the caller re-enumerates and rewrites.

var cacheMagic = [8]byte{'R', 'E', 'U', 'P', 'S', 'C', 'S', 'H'}

const schemaVersion uint16 = 1

// errMalformed is the single decode failure cause; the caller treats
// every decode error the same way, so detail lives in the wrap text.
var errMalformed = errors.New("malformed cache")

// Encode serializes the index with its fingerprint into the cache wire
// format.
func Encode(ix *stack.Index, fingerprint uint64) []byte {
	var out bytes.Buffer
	out.Write(cacheMagic[:])
	writeU16(&out, schemaVersion)
	writeU64(&out, fingerprint)
	writeString(&out, ix.Root)

	var sections bytes.Buffer
	writeSection(&sections, encodeProducts(ix))
	writeSection(&sections, encodeVersions(ix))
	writeSection(&sections, encodeTags(ix))

	out.Write(sections.Bytes())
	writeU64(&out, xxhash.Sum64(sections.Bytes()))
	return out.Bytes()
}

// Decode parses cache bytes back into an index and the fingerprint
// recorded at write time.
func Decode(data []byte) (*stack.Index, uint64, error) {
	r := &reader{data: data}

	var magic [8]byte
	r.read(magic[:])
	if magic != cacheMagic {
		return nil, 0, fmt.Errorf("%w: bad magic", errMalformed)
	}
	if v := r.u16(); v != schemaVersion {
		return nil, 0, fmt.Errorf("%w: schema version %d", errMalformed, v)
	}
	fingerprint := r.u64()
	root := r.str()
	if r.err != nil {
		return nil, 0, r.err
	}

	sectionStart := r.pos
	products := r.section()
	versions := r.section()
	tags := r.section()
	sectionEnd := r.pos
	checksum := r.u64()
	if r.err != nil {
		return nil, 0, r.err
	}
	if got := xxhash.Sum64(data[sectionStart:sectionEnd]); got != checksum {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", errMalformed)
	}

	ix, err := decodeIndex(root, products, versions, tags)
	if err != nil {
		return nil, 0, err
	}
	return ix, fingerprint, nil
}

func encodeProducts(ix *stack.Index) []byte {
	names := ix.Products()
	var b bytes.Buffer
	writeU32(&b, uint32(len(names)))
	for _, name := range names {
		writeString(&b, name)
	}
	return b.Bytes()
}

func encodeVersions(ix *stack.Index) []byte {
	var b bytes.Buffer
	writeU32(&b, uint32(len(ix.Versions)))
	for i := range ix.Versions {
		v := &ix.Versions[i]
		writeString(&b, v.Product)
		writeString(&b, v.Version)
		writeString(&b, v.ProdDir)
		writeString(&b, v.TablePath)
		writeString(&b, v.Flavor)
		keys := make([]string, 0, len(v.Metadata))
		for k := range v.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeU32(&b, uint32(len(keys)))
		for _, k := range keys {
			writeString(&b, k)
			writeString(&b, v.Metadata[k])
		}
	}
	return b.Bytes()
}

func encodeTags(ix *stack.Index) []byte {
	var b bytes.Buffer
	writeU32(&b, uint32(len(ix.Tags)))
	for _, tag := range ix.Tags {
		writeString(&b, tag.Product)
		writeString(&b, tag.Name)
		writeString(&b, tag.Version)
		b.WriteByte(byte(tag.Scope))
	}
	return b.Bytes()
}

func decodeIndex(root string, products, versions, tags []byte) (*stack.Index, error) {
	ix := &stack.Index{Root: root}

	// The product section is redundant with the version rows; decode
	// it anyway so a truncated file cannot half-validate.
	pr := &reader{data: products}
	for n := pr.u32(); n > 0 && pr.err == nil; n-- {
		pr.str()
	}
	if pr.err != nil {
		return nil, pr.err
	}

	vr := &reader{data: versions}
	for n := vr.u32(); n > 0 && vr.err == nil; n-- {
		var v product.Version
		v.Product = vr.str()
		v.Version = vr.str()
		v.ProdDir = vr.str()
		v.TablePath = vr.str()
		v.Flavor = vr.str()
		v.Stack = root
		for m := vr.u32(); m > 0 && vr.err == nil; m-- {
			k := vr.str()
			val := vr.str()
			if vr.err == nil {
				if v.Metadata == nil {
					v.Metadata = make(map[string]string)
				}
				v.Metadata[k] = val
			}
		}
		if vr.err == nil {
			ix.Versions = append(ix.Versions, v)
		}
	}
	if vr.err != nil {
		return nil, vr.err
	}

	tr := &reader{data: tags}
	for n := tr.u32(); n > 0 && tr.err == nil; n-- {
		var tag product.Tag
		tag.Product = tr.str()
		tag.Name = tr.str()
		tag.Version = tr.str()
		tag.Scope = product.TagScope(tr.byte())
		if tr.err == nil {
			ix.Tags = append(ix.Tags, tag)
		}
	}
	if tr.err != nil {
		return nil, tr.err
	}

	ix.Rebuild()
	return ix, nil
}

// --- primitive writers ---

func writeU16(b *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	b.Write(buf[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func writeU64(b *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(buf[:])
}

func writeString(b *bytes.Buffer, s string) {
	writeU32(b, uint32(len(s)))
	b.WriteString(s)
}

func writeSection(b *bytes.Buffer, payload []byte) {
	writeU32(b, uint32(len(payload)))
	b.Write(payload)
}

// --- primitive reader ---

// reader is a cursor over cache bytes that latches its first error so
// decode code can read linearly and check once.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated at offset %d", errMalformed, r.pos)
	}
}

func (r *reader) read(dst []byte) {
	if r.err != nil {
		return
	}
	if r.pos+len(dst) > len(r.data) {
		r.fail()
		return
	}
	copy(dst, r.data[r.pos:])
	r.pos += len(dst)
}

func (r *reader) byte() byte {
	var buf [1]byte
	r.read(buf[:])
	return buf[0]
}

func (r *reader) u16() uint16 {
	var buf [2]byte
	r.read(buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func (r *reader) u32() uint32 {
	var buf [4]byte
	r.read(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (r *reader) u64() uint64 {
	var buf [8]byte
	r.read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if r.pos+int(n) > len(r.data) {
		r.fail()
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

func (r *reader) section() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if r.pos+int(n) > len(r.data) {
		r.fail()
		return nil
	}
	payload := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return payload
}
