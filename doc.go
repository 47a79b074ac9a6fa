// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package amp is the coprocessor protocol of a two-core real-time control
device.

The kernel core (package kernel) loads one program image per run into its
payload window, binds the image's imports to the runtime API, runs the image
and reports how it ended.  The runtime core (package runtime) feeds images to
the kernel core, serves its requests, and executes the remote procedure calls
which the kernel makes to the host.

The cores talk through a pair of single-slot mailboxes (package mailbox) and
a shared-memory ring of asynchronous calls (package rpcqueue).  Timed output
events are written to the RTIO core's registers (package rtio), either
directly or by recording them into named DMA traces which are played back
later.

Command ampsim runs demo experiments on simulated hardware.
*/
package amp
