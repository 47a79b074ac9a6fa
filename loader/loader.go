// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader maps OpenRISC shared objects into the kernel core's payload
// window and binds their imports.
package loader

import (
	"bytes"
	"cmp"
	"debug/elf"
	"errors"
	"slices"
	"sort"

	"amp.computer/internal/error/badimage"
	"import.name/pan"
)

// OpenRISC relocation types.
const (
	R_OR1K_NONE     = 0
	R_OR1K_32       = 1
	R_OR1K_GLOB_DAT = 19
	R_OR1K_JMP_SLOT = 20
	R_OR1K_RELATIVE = 21
)

const relaEntrySize = 12

var z = new(pan.Zone)

func check(err error) {
	z.Check(err)
}

func fail(format string, args ...any) {
	z.Check(badimage.Errorf(format, args...))
}

// Resolver returns the address of a symbol provided by the runtime.
type Resolver func(name string) (addr uint32, found bool)

// Symbol exported by a loaded image.
type Symbol struct {
	Name string
	Addr uint32
	Size uint32
	Func bool
}

// Library is a loaded image.
type Library struct {
	window  *Window
	exports map[string]Symbol
	sorted  []Symbol
	imports map[string][]uint32 // Slot addresses.
}

// Load an image into the window.  Previous contents of the window are
// destroyed.  The returned error is a badimage error if the image is
// malformed, unsupported or has unresolvable imports.
func Load(image []byte, w *Window, resolve Resolver) (lib *Library, err error) {
	err = z.Recover(func() {
		lib = load(image, w, resolve)
	})
	return
}

func load(image []byte, w *Window, resolve Resolver) *Library {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		fail("malformed image: %v", err)
	}

	if f.Class != elf.ELFCLASS32 {
		fail("image class is %v", f.Class)
	}
	if f.Type != elf.ET_DYN {
		fail("image type is %v", f.Type)
	}
	if f.Machine != elf.EM_OPENRISC {
		fail("image machine is %v", f.Machine)
	}

	w.Order = f.ByteOrder
	clear(w.mem)

	mapped := false

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			fail("segment file size exceeds memory size")
		}
		if prog.Vaddr+prog.Memsz > uint64(w.Size()) {
			fail("segment at 0x%x+0x%x exceeds payload window", prog.Vaddr, prog.Memsz)
		}

		dest := w.mem[prog.Vaddr : prog.Vaddr+prog.Memsz]
		if _, err := prog.ReadAt(dest[:prog.Filesz], 0); err != nil {
			fail("truncated segment at 0x%x: %v", prog.Vaddr, err)
		}
		mapped = true
	}

	if !mapped {
		fail("image has no loadable segments")
	}

	syms, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		fail("dynamic symbol table: %v", err)
	}

	lib := &Library{
		window:  w,
		exports: make(map[string]Symbol),
		imports: make(map[string][]uint32),
	}

	for _, sym := range syms {
		if sym.Name == "" || sym.Section == elf.SHN_UNDEF {
			continue
		}
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_NOTYPE, elf.STT_OBJECT, elf.STT_FUNC:
		default:
			continue
		}

		s := Symbol{
			Name: sym.Name,
			Addr: w.base + uint32(sym.Value),
			Size: uint32(sym.Size),
			Func: elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
		}
		lib.exports[s.Name] = s
		lib.sorted = append(lib.sorted, s)
	}

	slices.SortFunc(lib.sorted, func(a, b Symbol) int {
		return cmp.Or(cmp.Compare(a.Addr, b.Addr), cmp.Compare(a.Size, b.Size))
	})

	for _, section := range f.Sections {
		if section.Type == elf.SHT_RELA {
			lib.relocate(f, section, syms, resolve)
		}
	}

	return lib
}

func (lib *Library) relocate(f *elf.File, section *elf.Section, syms []elf.Symbol, resolve Resolver) {
	data, err := section.Data()
	if err != nil {
		fail("relocation section %s: %v", section.Name, err)
	}
	if len(data)%relaEntrySize != 0 {
		fail("relocation section %s size is not a multiple of entry size", section.Name)
	}

	w := lib.window

	for ; len(data) > 0; data = data[relaEntrySize:] {
		var (
			off    = f.ByteOrder.Uint32(data[0:])
			info   = f.ByteOrder.Uint32(data[4:])
			addend = int32(f.ByteOrder.Uint32(data[8:]))
			addr   = w.base + off
		)

		if uint64(off)+4 > uint64(w.Size()) {
			fail("relocation offset 0x%x is outside of payload window", off)
		}

		var value uint32

		switch typ := elf.R_TYPE32(info); typ {
		case R_OR1K_NONE:
			continue

		case R_OR1K_RELATIVE:
			value = w.base + uint32(addend)

		case R_OR1K_32, R_OR1K_GLOB_DAT, R_OR1K_JMP_SLOT:
			index := elf.R_SYM32(info)
			if index == 0 {
				value = uint32(addend)
				break
			}
			if int(index) > len(syms) {
				fail("relocation refers to symbol index %d", index)
			}

			sym := syms[index-1]
			if sym.Section == elf.SHN_UNDEF {
				target, found := resolve(sym.Name)
				if !found {
					fail("symbol %q not found", sym.Name)
				}
				value = target + uint32(addend)
				if addend == 0 {
					lib.imports[sym.Name] = append(lib.imports[sym.Name], addr)
				}
			} else {
				value = w.base + uint32(sym.Value) + uint32(addend)
			}

		default:
			fail("unsupported relocation type %d", typ)
		}

		check(w.Write32(addr, value))
	}
}

// Window where the library is loaded.
func (lib *Library) Window() *Window {
	return lib.window
}

// Lookup an exported symbol's address.
func (lib *Library) Lookup(name string) (uint32, bool) {
	sym, found := lib.exports[name]
	return sym.Addr, found
}

// Symbol by name.
func (lib *Library) Symbol(name string) (Symbol, bool) {
	sym, found := lib.exports[name]
	return sym, found
}

// SymbolAt finds the exported symbol which contains the address.
func (lib *Library) SymbolAt(addr uint32) (Symbol, bool) {
	i := sort.Search(len(lib.sorted), func(i int) bool {
		return lib.sorted[i].Addr > addr
	})
	if i == 0 {
		return Symbol{}, false
	}

	sym := lib.sorted[i-1]
	if addr-sym.Addr >= max(sym.Size, 1) {
		return Symbol{}, false
	}
	return sym, true
}

// Import returns the current target address of an imported symbol.
func (lib *Library) Import(name string) (uint32, bool) {
	slots := lib.imports[name]
	if len(slots) == 0 {
		return 0, false
	}

	addr, err := lib.window.Read32(slots[0])
	if err != nil {
		return 0, false
	}
	return addr, true
}

// Rebind an imported symbol to another address.  Each slot is overwritten
// with a single word store.
func (lib *Library) Rebind(name string, addr uint32) error {
	slots := lib.imports[name]
	if len(slots) == 0 {
		return badimage.Errorf("image does not import %q", name)
	}

	for _, slot := range slots {
		if err := lib.window.Write32(slot, addr); err != nil {
			return err
		}
	}
	return nil
}
