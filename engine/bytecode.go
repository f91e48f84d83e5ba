package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Binary bytecode image format: a 4-byte "BCDE" file signature and a
// one-byte section count, followed by four sections (written even when
// empty), each with its own "SEC_" signature header. Section order is fixed:
// Code, Data, BytePool, Symbols.
const (
	fileSignature    = "BCDE"
	sectionSignature = "SEC_"
)

// sectionTag identifies a section's on-disk encoding, independent of the
// in-memory Section enum so the wire format can stay stable across changes
// to Section's iota ordering.
type sectionTag uint8

const (
	tagCode sectionTag = iota
	tagData
	tagBytePool
	tagSymbols
)

// WriteBytecode serializes the current buffer's Code, Data, BytePool, and
// Symbols sections to w so a later ReadBytecode round-trips byte-for-byte.
func WriteBytecode(w io.Writer, buf *ContextBuffer) error {
	if err := writeString4(w, fileSignature); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(4)); err != nil {
		return err
	}

	if err := writeCodeSection(w, buf.Commands); err != nil {
		return err
	}
	if err := writeDataSection(w, buf.Data); err != nil {
		return err
	}
	if err := writeBytePoolSection(w, buf.BytePool); err != nil {
		return err
	}
	if err := writeSymbolSection(w, buf.Symbols); err != nil {
		return err
	}
	return nil
}

func writeString4(w io.Writer, s string) error {
	if len(s) != 4 {
		panic("writeString4: signature must be exactly 4 bytes")
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeSectionHeader(w io.Writer, tag sectionTag, sizeBytes, sizeEntries uint32) error {
	if err := writeString4(w, sectionSignature); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, sizeBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, sizeEntries); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint8(tag))
}

func writeCodeSection(w io.Writer, cmds []Command) error {
	var body bytes.Buffer
	for _, c := range cmds {
		if err := binary.Write(&body, binary.LittleEndian, c.ID); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, uint8(c.Type)); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, uint8(c.Kind)); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, c.Immediate.tag); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, c.Immediate.bits); err != nil {
			return err
		}
		if err := writeReference(&body, c.Ref); err != nil {
			return err
		}
	}
	if err := writeSectionHeader(w, tagCode, uint32(body.Len()), uint32(len(cmds))); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func writeReference(w io.Writer, ref Reference) error {
	if err := binary.Write(w, binary.LittleEndian, uint8(ref.GlobalSection)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ref.NeedsLinkerPlacement); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(ref.Components))); err != nil {
		return err
	}
	for _, c := range ref.Components {
		if err := binary.Write(w, binary.LittleEndian, c.HasSymbol); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, c.SymbolHash); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, c.Offset); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, c.Indirect); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(c.Section)); err != nil {
			return err
		}
	}
	return nil
}

func readReference(r io.Reader) (Reference, error) {
	var ref Reference
	var globalSection, numComponents uint8
	if err := binary.Read(r, binary.LittleEndian, &globalSection); err != nil {
		return ref, err
	}
	ref.GlobalSection = Section(globalSection)
	if err := binary.Read(r, binary.LittleEndian, &ref.NeedsLinkerPlacement); err != nil {
		return ref, err
	}
	if err := binary.Read(r, binary.LittleEndian, &numComponents); err != nil {
		return ref, err
	}
	ref.Components = make([]Component, numComponents)
	for i := range ref.Components {
		c := &ref.Components[i]
		if err := binary.Read(r, binary.LittleEndian, &c.HasSymbol); err != nil {
			return ref, err
		}
		if err := binary.Read(r, binary.LittleEndian, &c.SymbolHash); err != nil {
			return ref, err
		}
		if err := binary.Read(r, binary.LittleEndian, &c.Offset); err != nil {
			return ref, err
		}
		if err := binary.Read(r, binary.LittleEndian, &c.Indirect); err != nil {
			return ref, err
		}
		var sec uint8
		if err := binary.Read(r, binary.LittleEndian, &sec); err != nil {
			return ref, err
		}
		c.Section = Section(sec)
	}
	return ref, nil
}

func writeDataSection(w io.Writer, data []Value) error {
	var body bytes.Buffer
	for _, v := range data {
		if err := binary.Write(&body, binary.LittleEndian, v.tag); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, v.bits); err != nil {
			return err
		}
	}
	if err := writeSectionHeader(w, tagData, uint32(body.Len()), uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func writeBytePoolSection(w io.Writer, pool []byte) error {
	if err := writeSectionHeader(w, tagBytePool, uint32(len(pool)), uint32(len(pool))); err != nil {
		return err
	}
	_, err := w.Write(pool)
	return err
}

// writeSymbolSection writes each symbol as hash, NUL-terminated name,
// resolved flag, and (if resolved) its Reference, mirroring WriteSymbols'
// name-then-entry layout in BytecodeIO.cpp. Symbols are written in ascending
// hash order so the section bytes do not depend on map iteration order.
func writeSymbolSection(w io.Writer, symbols map[uint64]*Symbol) error {
	var body bytes.Buffer
	hashes := make([]uint64, 0, len(symbols))
	for h := range symbols {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	for _, h := range hashes {
		sym := symbols[h]
		if err := binary.Write(&body, binary.LittleEndian, sym.Hash); err != nil {
			return err
		}
		if _, err := body.WriteString(sym.Name); err != nil {
			return err
		}
		if err := body.WriteByte(0); err != nil {
			return err
		}
		if err := binary.Write(&body, binary.LittleEndian, sym.Resolved); err != nil {
			return err
		}
		if sym.Resolved {
			if err := writeReference(&body, sym.Ref); err != nil {
				return err
			}
		}
	}
	if err := writeSectionHeader(w, tagSymbols, uint32(body.Len()), uint32(len(symbols))); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadBytecode deserializes an image written by WriteBytecode into buf,
// replacing its contents.
func ReadBytecode(r io.Reader, buf *ContextBuffer) error {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return newErr(ErrIOError, "read file header: %v", err)
	}
	if string(sig[:]) != fileSignature {
		return newErr(ErrFormatError, "bad file signature %q", sig)
	}
	var sectionCount uint8
	if err := binary.Read(r, binary.LittleEndian, &sectionCount); err != nil {
		return newErr(ErrIOError, "read section count: %v", err)
	}

	buf.Commands = nil
	buf.Data = nil
	buf.BytePool = nil
	buf.Symbols = make(map[uint64]*Symbol)

	for i := uint8(0); i < sectionCount; i++ {
		tag, entries, body, err := readSection(r)
		if err != nil {
			return err
		}
		switch tag {
		case tagCode:
			cmds, err := decodeCode(body, entries)
			if err != nil {
				return err
			}
			buf.Commands = cmds
		case tagData:
			vals, err := decodeData(body, entries)
			if err != nil {
				return err
			}
			buf.Data = vals
		case tagBytePool:
			buf.BytePool = append([]byte(nil), body...)
			buf.poolMax = len(buf.BytePool)
		case tagSymbols:
			symbols, err := decodeSymbols(body, entries)
			if err != nil {
				return err
			}
			installSymbolImage(buf, symbols)
		default:
			return newErr(ErrFormatError, "unknown section tag %d", tag)
		}
	}
	return nil
}

func readSection(r io.Reader) (sectionTag, uint32, []byte, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return 0, 0, nil, newErr(ErrIOError, "read section header: %v", err)
	}
	if string(sig[:]) != sectionSignature {
		return 0, 0, nil, newErr(ErrFormatError, "bad section signature %q", sig)
	}
	var sizeBytes, sizeEntries uint32
	var tag uint8
	if err := binary.Read(r, binary.LittleEndian, &sizeBytes); err != nil {
		return 0, 0, nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &sizeEntries); err != nil {
		return 0, 0, nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return 0, 0, nil, err
	}
	body := make([]byte, sizeBytes)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, 0, nil, newErr(ErrIOError, "read section body: %v", err)
	}
	return sectionTag(tag), sizeEntries, body, nil
}

func decodeCode(body []byte, count uint32) ([]Command, error) {
	r := bytes.NewReader(body)
	cmds := make([]Command, 0, count)
	for i := uint32(0); i < count; i++ {
		var c Command
		if err := binary.Read(r, binary.LittleEndian, &c.ID); err != nil {
			return nil, err
		}
		var typ, kind uint8
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		c.Type = ValueType(typ)
		c.Kind = ArgKind(kind)
		if err := binary.Read(r, binary.LittleEndian, &c.Immediate.tag); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &c.Immediate.bits); err != nil {
			return nil, err
		}
		ref, err := readReference(r)
		if err != nil {
			return nil, err
		}
		c.Ref = ref
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func decodeData(body []byte, count uint32) ([]Value, error) {
	r := bytes.NewReader(body)
	vals := make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		var v Value
		if err := binary.Read(r, binary.LittleEndian, &v.tag); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &v.bits); err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func decodeSymbols(body []byte, count uint32) (map[uint64]*Symbol, error) {
	r := bytes.NewReader(body)
	symbols := make(map[uint64]*Symbol, count)
	for i := uint32(0); i < count; i++ {
		var hash uint64
		if err := binary.Read(r, binary.LittleEndian, &hash); err != nil {
			return nil, err
		}
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		var resolved bool
		if err := binary.Read(r, binary.LittleEndian, &resolved); err != nil {
			return nil, err
		}
		sym := &Symbol{Hash: hash, Name: name, Resolved: resolved}
		if resolved {
			ref, err := readReference(r)
			if err != nil {
				return nil, err
			}
			sym.Ref = ref
		}
		symbols[hash] = sym
	}
	return symbols, nil
}

func readCString(r io.ByteReader) (string, error) {
	var b bytes.Buffer
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("read C string: %w", err)
		}
		if c == 0 {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}
