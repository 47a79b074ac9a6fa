// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
)

// Machine executes image code.
type Machine interface {
	// Call the function at an address within the loaded image.
	Call(k *Core, addr uint32)
}

// Text is a hosted machine.  The image's function symbols are bound to Go
// implementations by name.  Image code reaches the runtime API through
// Import.
type Text map[string]func(*Core)

func (t Text) Call(k *Core, addr uint32) {
	sym, found := k.lib.SymbolAt(addr)
	if !found || !sym.Func || sym.Addr != addr {
		panic(fmt.Sprintf("kernel: no function at 0x%08x", addr))
	}

	f := t[sym.Name]
	if f == nil {
		panic(fmt.Sprintf("kernel: no code for %s", sym.Name))
	}

	k.push(addr)
	f(k)
	k.pop()
}
