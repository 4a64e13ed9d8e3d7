// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagetables provides SV39 page tables whose nodes live in frames of
// simulated physical memory.
package pagetables

import (
	"fmt"

	"gvisor.dev/ukernel/pkg/hostarch"
	"gvisor.dev/ukernel/pkg/sentry/pgalloc"
)

// satpModeSV39 is the paging mode placed in bits 60..63 of a token.
const satpModeSV39 = 8

// PageTables is a three level page table.
//
// A PageTables created by New owns its root and every intermediate node and
// frees them in Release. One created by FromToken is a view that can be read
// but not modified.
type PageTables struct {
	file      *pgalloc.MemoryFile
	allocator *pgalloc.FrameAllocator

	root hostarch.PPN

	// nodes are the frames holding this table's nodes, root first.
	nodes []hostarch.PPN
}

// New returns an empty page table with a freshly allocated root node.
func New(allocator *pgalloc.FrameAllocator) (*PageTables, error) {
	root, err := allocator.Allocate()
	if err != nil {
		return nil, err
	}
	return &PageTables{
		file:      allocator.File(),
		allocator: allocator,
		root:      root,
		nodes:     []hostarch.PPN{root},
	}, nil
}

// FromToken returns a read-only view of the page table identified by token.
// The view owns no frames.
func FromToken(file *pgalloc.MemoryFile, token uint64) *PageTables {
	return &PageTables{
		file: file,
		root: hostarch.PPN(token & (1<<hostarch.PPNWidth - 1)),
	}
}

// Token returns the value that selects this page table: the SV39 mode in the
// top four bits and the root frame number below.
func (p *PageTables) Token() uint64 {
	return satpModeSV39<<60 | uint64(p.root)
}

// Root returns the frame holding the root node.
func (p *PageTables) Root() hostarch.PPN {
	return p.root
}

// Nodes returns the number of frames holding nodes of this table.
func (p *PageTables) Nodes() int {
	return len(p.nodes)
}

func (p *PageTables) readPTE(node hostarch.PPN, idx int) PTE {
	b := p.file.FrameBytes(node)
	return PTE(hostarch.ByteOrder.Uint64(b[idx*8:]))
}

func (p *PageTables) writePTE(node hostarch.PPN, idx int, pte PTE) {
	b := p.file.FrameBytes(node)
	hostarch.ByteOrder.PutUint64(b[idx*8:], uint64(pte))
}

// findPTE returns the node and index of the leaf entry for vpn. If create is
// true, missing intermediate nodes are allocated; otherwise ok is false when
// the walk reaches an invalid intermediate entry.
func (p *PageTables) findPTE(vpn hostarch.VPN, create bool) (node hostarch.PPN, idx int, ok bool, err error) {
	node = p.root
	idxs := vpn.Indexes()
	for level := 0; level < len(idxs)-1; level++ {
		pte := p.readPTE(node, idxs[level])
		if !pte.Valid() {
			if !create {
				return 0, 0, false, nil
			}
			next, err := p.allocator.Allocate()
			if err != nil {
				return 0, 0, false, err
			}
			p.nodes = append(p.nodes, next)
			pte = NewPTE(next, Valid)
			p.writePTE(node, idxs[level], pte)
		}
		node = pte.PPN()
	}
	return node, idxs[len(idxs)-1], true, nil
}

func (p *PageTables) mustOwn(op string) {
	if p.allocator == nil {
		panic(fmt.Sprintf("%s on a page table view", op))
	}
}

// Map installs a leaf entry mapping vpn to ppn with the given options. The
// only error is a failure to allocate an intermediate node.
//
// Precondition: vpn is not mapped. Mapping it twice panics.
func (p *PageTables) Map(vpn hostarch.VPN, ppn hostarch.PPN, opts MapOpts) error {
	p.mustOwn("Map")
	node, idx, _, err := p.findPTE(vpn, true)
	if err != nil {
		return err
	}
	if p.readPTE(node, idx).Valid() {
		panic(fmt.Sprintf("vpn %#x is mapped before mapping", uint64(vpn)))
	}
	p.writePTE(node, idx, NewPTE(ppn, opts.Flags()))
	return nil
}

// Unmap clears the leaf entry for vpn. Intermediate nodes are kept until
// Release.
//
// Precondition: vpn is mapped. Unmapping an invalid page panics.
func (p *PageTables) Unmap(vpn hostarch.VPN) {
	p.mustOwn("Unmap")
	node, idx, ok, _ := p.findPTE(vpn, false)
	if !ok || !p.readPTE(node, idx).Valid() {
		panic(fmt.Sprintf("vpn %#x is invalid before unmapping", uint64(vpn)))
	}
	p.writePTE(node, idx, 0)
}

// Translate returns the leaf entry for vpn. ok is false if the walk stopped at
// a missing intermediate node; the returned entry may itself be invalid.
func (p *PageTables) Translate(vpn hostarch.VPN) (pte PTE, ok bool) {
	node, idx, ok, _ := p.findPTE(vpn, false)
	if !ok {
		return 0, false
	}
	return p.readPTE(node, idx), true
}

// Lookup returns the physical address that addr maps to and the options of
// its page. ok is false if addr is not validly mapped.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical hostarch.PhysAddr, opts MapOpts, ok bool) {
	pte, found := p.Translate(addr.Floor())
	if !found || !pte.Valid() {
		return 0, MapOpts{}, false
	}
	return pte.PPN().Addr() + hostarch.PhysAddr(addr.PageOffset()), pte.Opts(), true
}

// Walk calls fn for every valid leaf entry in increasing vpn order.
func (p *PageTables) Walk(fn func(vpn hostarch.VPN, pte PTE)) {
	p.walk(p.root, 0, 0, fn)
}

func (p *PageTables) walk(node hostarch.PPN, level int, prefix hostarch.VPN, fn func(hostarch.VPN, PTE)) {
	for i := 0; i < hostarch.PTEsPerNode; i++ {
		pte := p.readPTE(node, i)
		if !pte.Valid() {
			continue
		}
		vpn := prefix<<9 | hostarch.VPN(i)
		if level == hostarch.PageTableLevels-1 {
			fn(vpn, pte)
			continue
		}
		p.walk(pte.PPN(), level+1, vpn, fn)
	}
}

// Release frees every node frame. Leaf targets are not freed; they belong to
// whoever mapped them.
func (p *PageTables) Release() {
	p.mustOwn("Release")
	for _, n := range p.nodes {
		p.allocator.Free(n)
	}
	p.nodes = nil
}
