// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elfimage builds minimal OpenRISC shared objects for tests and
// simulations.
//
// Function bodies contain no machine code; the hosted kernel binds Go
// implementations to the function symbols.
package elfimage

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

type Section int

const (
	Text Section = iota
	Data
	BSS
)

// Ref is a location within the image.
type Ref struct {
	Section Section
	Offset  uint32
}

// Add an offset to the location.
func (r Ref) Add(n uint32) Ref {
	return Ref{r.Section, r.Offset + n}
}

// Endian byte order.
type Endian interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

const (
	FuncSize = 16
	textBase = 0x100
)

type symbol struct {
	name string
	ref  *Ref // Nil if undefined.
	size uint32
	typ  elf.SymType
}

type rela struct {
	at     Ref
	typ    uint32
	sym    string
	target *Ref
	addend int32
}

// Builder of an image.  The zero value is not usable; use New.
type Builder struct {
	Order   Endian
	Machine elf.Machine
	Type    elf.Type

	// NoBSSBounds omits the __bss_start and _end symbols.
	NoBSSBounds bool

	text  []byte
	data  []byte
	bss   uint32
	syms  []symbol
	relas []rela
}

// New big-endian OpenRISC shared object builder.
func New() *Builder {
	return &Builder{
		Order:   binary.BigEndian,
		Machine: elf.EM_OPENRISC,
		Type:    elf.ET_DYN,
	}
}

// Func defines a function symbol.
func (b *Builder) Func(name string) Ref {
	ref := Ref{Text, uint32(len(b.text))}
	b.text = append(b.text, make([]byte, FuncSize)...)
	b.Define(name, ref, FuncSize, elf.STT_FUNC)
	return ref
}

// Object defines a data symbol with initial content.
func (b *Builder) Object(name string, content []byte) Ref {
	ref := b.Put(content)
	b.Define(name, ref, uint32(len(content)), elf.STT_OBJECT)
	return ref
}

// Zeros defines an uninitialized data symbol.
func (b *Builder) Zeros(name string, size uint32) Ref {
	b.bss = align(b.bss, 4)
	ref := Ref{BSS, b.bss}
	b.bss += size
	b.Define(name, ref, size, elf.STT_OBJECT)
	return ref
}

// Define a symbol at a location.
func (b *Builder) Define(name string, ref Ref, size uint32, typ elf.SymType) {
	b.syms = append(b.syms, symbol{name, &ref, size, typ})
}

// Put anonymous data.
func (b *Builder) Put(content []byte) Ref {
	ref := Ref{Data, uint32(len(b.data))}
	b.data = append(b.data, content...)
	return ref
}

// Word of anonymous data, aligned to 4 bytes.
func (b *Builder) Word(value uint32) Ref {
	for len(b.data)%4 != 0 {
		b.data = append(b.data, 0)
	}
	ref := Ref{Data, uint32(len(b.data))}
	b.data = b.Order.AppendUint32(b.data, value)
	return ref
}

// Pointer word which is relocated to point at the target.
func (b *Builder) Pointer(target Ref) Ref {
	ref := b.Word(0)
	b.relas = append(b.relas, rela{at: ref, typ: 21, target: &target})
	return ref
}

// Import a symbol through a jump slot.  The slot location is returned.
func (b *Builder) Import(name string) Ref {
	ref := b.Word(0)
	b.Reloc(ref, 20, name, 0)
	return ref
}

// Reloc adds a raw relocation against a symbol.  An undefined symbol is
// declared if the name is not defined when the image is built.
func (b *Builder) Reloc(at Ref, typ uint32, name string, addend int32) {
	b.relas = append(b.relas, rela{at: at, typ: typ, sym: name, addend: addend})
}

// Attr of a type for attribute writeback.
type Attr struct {
	Offset uint32
	Tag    string
	Name   string
}

// Type lists the attributes of a type and the objects which have it.
type Type struct {
	Attrs   []Attr
	Objects []Ref
}

// Typeinfo defines the typeinfo symbol.  It is a null-terminated array of
// type pointers; a type is a pair of pointers to null-terminated attribute
// and object pointer arrays; an attribute is an offset word followed by tag
// and name slices (pointer and length words).
func (b *Builder) Typeinfo(types ...Type) Ref {
	var typeRefs []Ref

	for _, t := range types {
		var attrRefs []Ref

		for _, a := range t.Attrs {
			tag := b.Put([]byte(a.Tag))
			name := b.Put([]byte(a.Name))

			ref := b.Word(a.Offset)
			b.Pointer(tag)
			b.Word(uint32(len(a.Tag)))
			b.Pointer(name)
			b.Word(uint32(len(a.Name)))
			attrRefs = append(attrRefs, ref)
		}

		attrs := b.pointers(attrRefs)
		objects := b.pointers(t.Objects)

		ref := b.Pointer(attrs)
		b.Pointer(objects)
		typeRefs = append(typeRefs, ref)
	}

	ref := b.pointers(typeRefs)
	b.Define("typeinfo", ref, uint32(len(typeRefs)+1)*4, elf.STT_OBJECT)
	return ref
}

func (b *Builder) pointers(targets []Ref) Ref {
	if len(targets) == 0 {
		return b.Word(0)
	}

	ref := b.Pointer(targets[0])
	for _, target := range targets[1:] {
		b.Pointer(target)
	}
	b.Word(0)
	return ref
}

type layout struct {
	text, data, bss uint32
	fileEnd, memEnd uint32
}

func (b *Builder) layout() layout {
	var l layout
	l.text = textBase
	l.data = align(l.text+uint32(len(b.text)), 16)
	l.bss = align(l.data+uint32(len(b.data)), 16)
	l.fileEnd = l.data + uint32(len(b.data))
	l.memEnd = l.bss + b.bss
	return l
}

func (l layout) addr(r Ref) uint32 {
	switch r.Section {
	case Text:
		return l.text + r.Offset
	case Data:
		return l.data + r.Offset
	default:
		return l.bss + r.Offset
	}
}

// Addr of a location relative to the load address.  The result is stable
// once no more text or data is added.
func (b *Builder) Addr(r Ref) uint32 {
	return b.layout().addr(r)
}

// Image encodes the ELF file.
func (b *Builder) Image() []byte {
	l := b.layout()

	syms := b.syms
	if !b.NoBSSBounds {
		syms = append(syms[:len(syms):len(syms)],
			symbol{"__bss_start", &Ref{BSS, 0}, 0, elf.STT_NOTYPE},
			symbol{"_end", &Ref{BSS, b.bss}, 0, elf.STT_NOTYPE},
		)
	}

	defined := make(map[string]bool)
	for _, s := range syms {
		defined[s.name] = true
	}
	for _, r := range b.relas {
		if r.sym != "" && !defined[r.sym] {
			syms = append(syms, symbol{name: r.sym, typ: elf.STT_FUNC})
			defined[r.sym] = true
		}
	}

	// Dynamic symbol and string tables.

	dynstr := []byte{0}
	dynsym := make([]byte, 16) // Null symbol.
	index := make(map[string]uint32)

	for i, s := range syms {
		index[s.name] = uint32(i + 1)

		var value, shndx uint32
		if s.ref != nil {
			value = l.addr(*s.ref)
			shndx = uint32(s.ref.Section) + 1
		}

		dynsym = b.Order.AppendUint32(dynsym, uint32(len(dynstr)))
		dynsym = b.Order.AppendUint32(dynsym, value)
		dynsym = b.Order.AppendUint32(dynsym, s.size)
		dynsym = append(dynsym, byte(elf.STB_GLOBAL)<<4|byte(s.typ), 0)
		dynsym = b.Order.AppendUint16(dynsym, uint16(shndx))

		dynstr = append(append(dynstr, s.name...), 0)
	}

	var relocs []byte
	for _, r := range b.relas {
		var symIndex uint32
		addend := r.addend
		if r.target != nil {
			addend = int32(l.addr(*r.target))
		} else {
			symIndex = index[r.sym]
		}

		relocs = b.Order.AppendUint32(relocs, l.addr(r.at))
		relocs = b.Order.AppendUint32(relocs, symIndex<<8|r.typ)
		relocs = b.Order.AppendUint32(relocs, uint32(addend))
	}

	shstrtab := []byte{0}
	names := make(map[string]uint32)
	for _, name := range []string{".text", ".data", ".bss", ".dynsym", ".dynstr", ".rela.dyn", ".shstrtab"} {
		names[name] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, name...), 0)
	}

	// File layout after the loadable segment.

	dynsymOff := align(l.fileEnd, 4)
	dynstrOff := dynsymOff + uint32(len(dynsym))
	relaOff := align(dynstrOff+uint32(len(dynstr)), 4)
	shstrtabOff := relaOff + uint32(len(relocs))
	shOff := align(shstrtabOff+uint32(len(shstrtab)), 4)

	const shnum = 8

	out := make([]byte, 0, shOff+shnum*40)

	// ELF header.
	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), 0, byte(elf.EV_CURRENT)}
	if b.Order.String() == binary.BigEndian.String() {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	out = append(out, ident[:]...)
	out = b.Order.AppendUint16(out, uint16(b.Type))
	out = b.Order.AppendUint16(out, uint16(b.Machine))
	out = b.Order.AppendUint32(out, uint32(elf.EV_CURRENT))
	out = b.Order.AppendUint32(out, 0)  // Entry.
	out = b.Order.AppendUint32(out, 52) // Program header offset.
	out = b.Order.AppendUint32(out, shOff)
	out = b.Order.AppendUint32(out, 0)  // Flags.
	out = b.Order.AppendUint16(out, 52) // Header size.
	out = b.Order.AppendUint16(out, 32)
	out = b.Order.AppendUint16(out, 1)
	out = b.Order.AppendUint16(out, 40)
	out = b.Order.AppendUint16(out, shnum)
	out = b.Order.AppendUint16(out, shnum-1)

	// Program header.
	out = b.Order.AppendUint32(out, uint32(elf.PT_LOAD))
	out = b.Order.AppendUint32(out, 0)
	out = b.Order.AppendUint32(out, 0)
	out = b.Order.AppendUint32(out, 0)
	out = b.Order.AppendUint32(out, l.fileEnd)
	out = b.Order.AppendUint32(out, l.memEnd)
	out = b.Order.AppendUint32(out, uint32(elf.PF_R|elf.PF_W|elf.PF_X))
	out = b.Order.AppendUint32(out, 0x1000)

	out = pad(out, l.text)
	out = append(out, b.text...)
	out = pad(out, l.data)
	out = append(out, b.data...)
	out = pad(out, dynsymOff)
	out = append(out, dynsym...)
	out = append(out, dynstr...)
	out = pad(out, relaOff)
	out = append(out, relocs...)
	out = append(out, shstrtab...)
	out = pad(out, shOff)

	section := func(name string, typ elf.SectionType, flags elf.SectionFlag, addr, off, size, link, info, align, entsize uint32) {
		var nameOff uint32
		if name != "" {
			nameOff = names[name]
		}
		for _, v := range []uint32{nameOff, uint32(typ), uint32(flags), addr, off, size, link, info, align, entsize} {
			out = b.Order.AppendUint32(out, v)
		}
	}

	alloc := elf.SHF_ALLOC
	section("", elf.SHT_NULL, 0, 0, 0, 0, 0, 0, 0, 0)
	section(".text", elf.SHT_PROGBITS, alloc|elf.SHF_EXECINSTR, l.text, l.text, uint32(len(b.text)), 0, 0, 16, 0)
	section(".data", elf.SHT_PROGBITS, alloc|elf.SHF_WRITE, l.data, l.data, uint32(len(b.data)), 0, 0, 16, 0)
	section(".bss", elf.SHT_NOBITS, alloc|elf.SHF_WRITE, l.bss, l.bss, b.bss, 0, 0, 16, 0)
	section(".dynsym", elf.SHT_DYNSYM, 0, 0, dynsymOff, uint32(len(dynsym)), 5, 1, 4, 16)
	section(".dynstr", elf.SHT_STRTAB, 0, 0, dynstrOff, uint32(len(dynstr)), 0, 0, 1, 0)
	section(".rela.dyn", elf.SHT_RELA, 0, 0, relaOff, uint32(len(relocs)), 4, 0, 4, 12)
	section(".shstrtab", elf.SHT_STRTAB, 0, 0, shstrtabOff, uint32(len(shstrtab)), 0, 0, 1, 0)

	return out
}

func align(n, a uint32) uint32 {
	return (n + a - 1) &^ (a - 1)
}

func pad(b []byte, off uint32) []byte {
	if uint32(len(b)) > off {
		panic(fmt.Sprintf("elfimage: layout overlap at 0x%x", off))
	}
	return append(b, make([]byte, int(off)-len(b))...)
}
