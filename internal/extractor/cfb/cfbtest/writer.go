// Package cfbtest builds small version-3 compound files for tests. Streams
// under the mini-stream cutoff are stored in the mini stream, larger ones in
// regular sectors, so both read paths of package cfb get exercised.
package cfbtest

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

const (
	sectorSize     = 512
	miniSectorSize = 64
	miniCutoff     = 4096
	entriesPerFAT  = sectorSize / 4

	endOfChain = 0xFFFFFFFE
	freeSect   = 0xFFFFFFFF
	fatSect    = 0xFFFFFFFD
	noStream   = 0xFFFFFFFF
)

var signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// File is one stream to place in the container, e.g. "BodyText/Section0".
type File struct {
	Path string
	Data []byte
}

type node struct {
	name     string
	storage  bool
	data     []byte
	children []*node
	id       uint32
	start    uint32
	size     uint64
}

// Build lays files out as a compound file. Sibling order in the directory
// follows the order of files, which lets tests feed sections out of order.
func Build(files []File) []byte {
	root := &node{name: "Root Entry", storage: true}
	for _, f := range files {
		parts := strings.Split(strings.Trim(f.Path, "/"), "/")
		parent := root
		for i, part := range parts {
			last := i == len(parts)-1
			var found *node
			for _, c := range parent.children {
				if c.name == part {
					found = c
					break
				}
			}
			if found == nil {
				found = &node{name: part, storage: !last}
				parent.children = append(parent.children, found)
			}
			if last {
				found.data = f.Data
			}
			parent = found
		}
	}

	var all []*node
	var number func(n *node)
	number = func(n *node) {
		n.id = uint32(len(all))
		all = append(all, n)
		for _, c := range n.children {
			number(c)
		}
	}
	number(root)

	// Mini stream for small streams.
	var mini []byte
	var miniFAT []uint32
	var big []*node
	for _, n := range all {
		if n.storage {
			continue
		}
		n.size = uint64(len(n.data))
		n.start = endOfChain
		if len(n.data) == 0 {
			continue
		}
		if len(n.data) >= miniCutoff {
			big = append(big, n)
			continue
		}
		first := uint32(len(miniFAT))
		count := (len(n.data) + miniSectorSize - 1) / miniSectorSize
		for i := 0; i < count; i++ {
			if i == count-1 {
				miniFAT = append(miniFAT, endOfChain)
			} else {
				miniFAT = append(miniFAT, first+uint32(i)+1)
			}
		}
		n.start = first
		padded := make([]byte, count*miniSectorSize)
		copy(padded, n.data)
		mini = append(mini, padded...)
	}

	dirSectors := (len(all)*128 + sectorSize - 1) / sectorSize
	miniFATSectors := (len(miniFAT)*4 + sectorSize - 1) / sectorSize
	miniStreamSectors := (len(mini) + sectorSize - 1) / sectorSize
	bigSectors := 0
	for _, n := range big {
		bigSectors += (len(n.data) + sectorSize - 1) / sectorSize
	}
	nonFAT := dirSectors + miniFATSectors + miniStreamSectors + bigSectors
	fatSectors := 1
	for (fatSectors+nonFAT+entriesPerFAT-1)/entriesPerFAT > fatSectors {
		fatSectors++
	}

	total := fatSectors + nonFAT
	fat := make([]uint32, fatSectors*entriesPerFAT)
	for i := range fat {
		fat[i] = freeSect
	}
	next := uint32(0)
	alloc := func(count int) uint32 {
		if count == 0 {
			return endOfChain
		}
		first := next
		for i := 0; i < count; i++ {
			if i == count-1 {
				fat[next] = endOfChain
			} else {
				fat[next] = next + 1
			}
			next++
		}
		return first
	}
	fatStart := next
	for i := 0; i < fatSectors; i++ {
		fat[next] = fatSect
		next++
	}
	dirStart := alloc(dirSectors)
	miniFATStart := alloc(miniFATSectors)
	miniStart := alloc(miniStreamSectors)
	for _, n := range big {
		n.start = alloc((len(n.data) + sectorSize - 1) / sectorSize)
	}
	root.start = miniStart
	root.size = uint64(len(mini))

	out := make([]byte, sectorSize*(1+total))
	le := binary.LittleEndian

	h := out[:sectorSize]
	copy(h, signature)
	le.PutUint16(h[0x18:], 0x3E)
	le.PutUint16(h[0x1A:], 3)
	le.PutUint16(h[0x1C:], 0xFFFE)
	le.PutUint16(h[0x1E:], 9)
	le.PutUint16(h[0x20:], 6)
	le.PutUint32(h[0x2C:], uint32(fatSectors))
	le.PutUint32(h[0x30:], dirStart)
	le.PutUint32(h[0x38:], miniCutoff)
	le.PutUint32(h[0x3C:], miniFATStart)
	le.PutUint32(h[0x40:], uint32(miniFATSectors))
	le.PutUint32(h[0x44:], endOfChain)
	le.PutUint32(h[0x48:], 0)
	for i := 0; i < 109; i++ {
		v := uint32(freeSect)
		if i < fatSectors {
			v = fatStart + uint32(i)
		}
		le.PutUint32(h[0x4C+i*4:], v)
	}

	sectorAt := func(id uint32) []byte {
		off := (int(id) + 1) * sectorSize
		return out[off : off+sectorSize]
	}

	for i, v := range fat {
		sec := sectorAt(fatStart + uint32(i/entriesPerFAT))
		le.PutUint32(sec[(i%entriesPerFAT)*4:], v)
	}

	dir := make([]byte, dirSectors*sectorSize)
	for i := len(all); i < dirSectors*sectorSize/128; i++ {
		e := dir[i*128 : (i+1)*128]
		le.PutUint32(e[68:], noStream)
		le.PutUint32(e[72:], noStream)
		le.PutUint32(e[76:], noStream)
	}
	for _, n := range all {
		writeDirEntry(dir[int(n.id)*128:int(n.id+1)*128], n, n == root)
	}
	for _, n := range all {
		for i := 0; i+1 < len(n.children); i++ {
			c := n.children[i]
			le.PutUint32(dir[int(c.id)*128+72:], n.children[i+1].id)
		}
	}
	writeChain(sectorAt, dirStart, dir)

	mf := make([]byte, miniFATSectors*sectorSize)
	for i := range mf {
		mf[i] = 0xFF
	}
	for i, v := range miniFAT {
		le.PutUint32(mf[i*4:], v)
	}
	writeChain(sectorAt, miniFATStart, mf)
	writeChain(sectorAt, miniStart, mini)
	for _, n := range big {
		writeChain(sectorAt, n.start, n.data)
	}
	return out
}

func writeChain(sectorAt func(uint32) []byte, start uint32, data []byte) {
	for i := 0; i*sectorSize < len(data); i++ {
		end := (i + 1) * sectorSize
		if end > len(data) {
			end = len(data)
		}
		copy(sectorAt(start+uint32(i)), data[i*sectorSize:end])
	}
}

// writeDirEntry encodes one node. Build patches right-sibling links
// afterwards so children form a right-leaning chain, which an in-order walk
// visits in slice order.
func writeDirEntry(e []byte, n *node, isRoot bool) {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(n.name))
	for i, u := range units {
		le.PutUint16(e[i*2:], u)
	}
	le.PutUint16(e[64:], uint16((len(units)+1)*2))
	switch {
	case isRoot:
		e[66] = 5
	case n.storage:
		e[66] = 1
	default:
		e[66] = 2
	}
	e[67] = 1
	le.PutUint32(e[68:], noStream)
	le.PutUint32(e[72:], noStream)
	le.PutUint32(e[76:], noStream)
	if len(n.children) > 0 {
		le.PutUint32(e[76:], n.children[0].id)
	}
	le.PutUint32(e[116:], n.start)
	le.PutUint64(e[120:], n.size)
}
