// Package cfb reads OLE compound files (Compound File Binary), the
// container format HWP v5 documents are stored in.
package cfb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

const (
	HeaderSize     = 512
	DirEntrySize   = 128
	MiniSectorSize = 64
	MiniCutoff     = 4096

	headerDIFATEntries = 109

	maxRegSect = 0xFFFFFFFA
	endOfChain = 0xFFFFFFFE
	freeSect   = 0xFFFFFFFF
	noStream   = 0xFFFFFFFF
)

var Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var sectionPattern = regexp.MustCompile(`BODYTEXT/SECTION(\d+)$`)

type entryType byte

const (
	typeStorage entryType = 1
	typeStream  entryType = 2
	typeRoot    entryType = 5
)

type header struct {
	MajorVersion     uint16
	SectorShift      uint16
	MiniSectorShift  uint16
	NumFATSectors    uint32
	FirstDirSector   uint32
	MiniStreamCutoff uint32
	FirstMiniFAT     uint32
	NumMiniFAT       uint32
	FirstDIFAT       uint32
	NumDIFAT         uint32
	DIFAT            [headerDIFATEntries]uint32
}

type dirEntry struct {
	name        string
	typ         entryType
	left        uint32
	right       uint32
	child       uint32
	startSector uint32
	size        uint64
}

// Entry is one stream of the container, addressed by its full path below
// the root storage ("BodyText/Section0").
type Entry struct {
	Path string
	Name string
	Size int64
	Data []byte
}

// Container is a parsed compound file. Streams are materialised eagerly;
// HWP files are small enough that this is cheaper than lazy reads.
type Container struct {
	entries []Entry
	byPath  map[string]int
}

type reader struct {
	buf        []byte
	hdr        header
	sectorSize int
	fat        []uint32
	miniFAT    []uint32
	miniStream []byte
	dir        []dirEntry
}

// Open parses buf as a compound file. Malformed input returns an error
// wrapping ErrCorruptContainer; Open never returns an empty Container
// without an error.
func Open(buf []byte) (*Container, error) {
	r := &reader{buf: buf}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.buildFAT(); err != nil {
		return nil, err
	}
	if err := r.readDirectory(); err != nil {
		return nil, err
	}
	if err := r.buildMini(); err != nil {
		return nil, err
	}
	return r.collect()
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrCorruptContainer, fmt.Sprintf(format, args...))
}

func (r *reader) readHeader() error {
	if len(r.buf) < HeaderSize {
		return corrupt("file is %d bytes, shorter than the header", len(r.buf))
	}
	if !bytes.Equal(r.buf[:8], Signature) {
		return corrupt("bad signature %x", r.buf[:8])
	}
	b := r.buf
	h := header{
		MajorVersion:     binary.LittleEndian.Uint16(b[0x1A:0x1C]),
		SectorShift:      binary.LittleEndian.Uint16(b[0x1E:0x20]),
		MiniSectorShift:  binary.LittleEndian.Uint16(b[0x20:0x22]),
		NumFATSectors:    binary.LittleEndian.Uint32(b[0x2C:0x30]),
		FirstDirSector:   binary.LittleEndian.Uint32(b[0x30:0x34]),
		MiniStreamCutoff: binary.LittleEndian.Uint32(b[0x38:0x3C]),
		FirstMiniFAT:     binary.LittleEndian.Uint32(b[0x3C:0x40]),
		NumMiniFAT:       binary.LittleEndian.Uint32(b[0x40:0x44]),
		FirstDIFAT:       binary.LittleEndian.Uint32(b[0x44:0x48]),
		NumDIFAT:         binary.LittleEndian.Uint32(b[0x48:0x4C]),
	}
	for i := 0; i < headerDIFATEntries; i++ {
		off := 0x4C + i*4
		h.DIFAT[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	if h.SectorShift != 9 && h.SectorShift != 12 {
		return corrupt("unsupported sector shift %d", h.SectorShift)
	}
	if h.MiniSectorShift != 6 {
		return corrupt("unsupported mini sector shift %d", h.MiniSectorShift)
	}
	if h.MiniStreamCutoff == 0 {
		h.MiniStreamCutoff = MiniCutoff
	}
	r.hdr = h
	r.sectorSize = 1 << h.SectorShift
	return nil
}

// sector returns sector id's bytes. The last sector of a file may be short.
func (r *reader) sector(id uint32) ([]byte, error) {
	if id > maxRegSect {
		return nil, corrupt("sector id %#x is not a regular sector", id)
	}
	off := (int64(id) + 1) * int64(r.sectorSize)
	if off >= int64(len(r.buf)) {
		return nil, corrupt("sector %d at offset %d is past end of file (%d bytes)", id, off, len(r.buf))
	}
	end := off + int64(r.sectorSize)
	if end > int64(len(r.buf)) {
		end = int64(len(r.buf))
	}
	return r.buf[off:end], nil
}

func (r *reader) buildFAT() error {
	fatSectors := make([]uint32, 0, r.hdr.NumFATSectors)
	for _, id := range r.hdr.DIFAT {
		if uint32(len(fatSectors)) >= r.hdr.NumFATSectors {
			break
		}
		if id == freeSect || id == endOfChain {
			break
		}
		fatSectors = append(fatSectors, id)
	}

	perSector := r.sectorSize/4 - 1
	next := r.hdr.FirstDIFAT
	seen := make(map[uint32]bool)
	for i := uint32(0); i < r.hdr.NumDIFAT && next != endOfChain && next != freeSect; i++ {
		if seen[next] {
			return corrupt("DIFAT chain cycles at sector %d", next)
		}
		seen[next] = true
		sec, err := r.sector(next)
		if err != nil {
			return fmt.Errorf("reading DIFAT: %w", err)
		}
		for j := 0; j < perSector && uint32(len(fatSectors)) < r.hdr.NumFATSectors; j++ {
			if (j+1)*4 > len(sec) {
				break
			}
			id := binary.LittleEndian.Uint32(sec[j*4:])
			if id == freeSect || id == endOfChain {
				continue
			}
			fatSectors = append(fatSectors, id)
		}
		if len(sec) < r.sectorSize {
			break
		}
		next = binary.LittleEndian.Uint32(sec[perSector*4:])
	}

	if len(fatSectors) == 0 {
		return corrupt("no FAT sectors")
	}
	r.fat = make([]uint32, 0, len(fatSectors)*r.sectorSize/4)
	for _, id := range fatSectors {
		sec, err := r.sector(id)
		if err != nil {
			return fmt.Errorf("reading FAT: %w", err)
		}
		for j := 0; j+4 <= len(sec); j += 4 {
			r.fat = append(r.fat, binary.LittleEndian.Uint32(sec[j:]))
		}
	}
	return nil
}

// chain follows a FAT-style table from start. Cycles and ids outside the
// table are corruption.
func chain(table []uint32, start uint32, what string) ([]uint32, error) {
	var ids []uint32
	seen := make(map[uint32]bool)
	for id := start; id != endOfChain; {
		if id == freeSect {
			// Some writers terminate short chains with FREESECT.
			break
		}
		if int64(id) >= int64(len(table)) {
			return nil, corrupt("%s chain references sector %d outside a %d-entry table", what, id, len(table))
		}
		if seen[id] {
			return nil, corrupt("%s chain cycles at sector %d", what, id)
		}
		seen[id] = true
		ids = append(ids, id)
		id = table[id]
	}
	return ids, nil
}

func (r *reader) readChain(start uint32, what string) ([]byte, error) {
	ids, err := chain(r.fat, start, what)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(ids)*r.sectorSize)
	for _, id := range ids {
		sec, err := r.sector(id)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", what, err)
		}
		out = append(out, sec...)
	}
	return out, nil
}

func (r *reader) readDirectory() error {
	data, err := r.readChain(r.hdr.FirstDirSector, "directory")
	if err != nil {
		return err
	}
	for off := 0; off+DirEntrySize <= len(data); off += DirEntrySize {
		r.dir = append(r.dir, parseDirEntry(data[off:off+DirEntrySize], r.hdr.MajorVersion))
	}
	if len(r.dir) == 0 || r.dir[0].typ != typeRoot {
		return corrupt("directory has no root entry")
	}
	return nil
}

func parseDirEntry(b []byte, majorVersion uint16) dirEntry {
	nameLen := int(binary.LittleEndian.Uint16(b[64:66]))
	if nameLen > 64 {
		nameLen = 64
	}
	units := make([]uint16, 0, nameLen/2)
	for i := 0; i+1 < nameLen; i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	size := binary.LittleEndian.Uint64(b[120:128])
	if majorVersion == 3 {
		// Version 3 files may leave garbage in the high dword.
		size &= 0xFFFFFFFF
	}
	return dirEntry{
		name:        string(utf16.Decode(units)),
		typ:         entryType(b[66]),
		left:        binary.LittleEndian.Uint32(b[68:72]),
		right:       binary.LittleEndian.Uint32(b[72:76]),
		child:       binary.LittleEndian.Uint32(b[76:80]),
		startSector: binary.LittleEndian.Uint32(b[116:120]),
		size:        size,
	}
}

func (r *reader) buildMini() error {
	root := r.dir[0]
	if root.size == 0 {
		return nil
	}
	stream, err := r.readChain(root.startSector, "mini stream")
	if err != nil {
		return err
	}
	if uint64(len(stream)) > root.size {
		stream = stream[:root.size]
	}
	r.miniStream = stream

	if r.hdr.NumMiniFAT == 0 || r.hdr.FirstMiniFAT == endOfChain {
		return nil
	}
	data, err := r.readChain(r.hdr.FirstMiniFAT, "mini FAT")
	if err != nil {
		return err
	}
	r.miniFAT = make([]uint32, 0, len(data)/4)
	for j := 0; j+4 <= len(data); j += 4 {
		r.miniFAT = append(r.miniFAT, binary.LittleEndian.Uint32(data[j:]))
	}
	return nil
}

func (r *reader) streamData(e dirEntry) ([]byte, error) {
	if e.size == 0 {
		return nil, nil
	}
	if e.size > uint64(len(r.buf)) {
		return nil, corrupt("stream %q declares %d bytes in a %d-byte file", e.name, e.size, len(r.buf))
	}
	var data []byte
	if e.size < uint64(r.hdr.MiniStreamCutoff) {
		ids, err := chain(r.miniFAT, e.startSector, "mini")
		if err != nil {
			return nil, err
		}
		data = make([]byte, 0, len(ids)*MiniSectorSize)
		for _, id := range ids {
			off := int(id) * MiniSectorSize
			if off >= len(r.miniStream) {
				return nil, corrupt("mini sector %d past end of mini stream", id)
			}
			end := off + MiniSectorSize
			if end > len(r.miniStream) {
				end = len(r.miniStream)
			}
			data = append(data, r.miniStream[off:end]...)
		}
	} else {
		var err error
		data, err = r.readChain(e.startSector, "stream "+e.name)
		if err != nil {
			return nil, err
		}
	}
	if uint64(len(data)) > e.size {
		data = data[:e.size]
	}
	return data, nil
}

// collect walks the red-black sibling trees in order and builds full paths.
func (r *reader) collect() (*Container, error) {
	c := &Container{byPath: make(map[string]int)}
	visited := make(map[uint32]bool)

	var walk func(id uint32, prefix string) error
	walk = func(id uint32, prefix string) error {
		if id == noStream {
			return nil
		}
		if int(id) >= len(r.dir) {
			return corrupt("directory entry %d out of range", id)
		}
		if visited[id] {
			return corrupt("directory tree revisits entry %d", id)
		}
		visited[id] = true
		e := r.dir[id]

		if err := walk(e.left, prefix); err != nil {
			return err
		}
		path := e.name
		if prefix != "" {
			path = prefix + "/" + e.name
		}
		switch e.typ {
		case typeStorage:
			if err := walk(e.child, path); err != nil {
				return err
			}
		case typeStream:
			data, err := r.streamData(e)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			c.byPath[strings.ToUpper(path)] = len(c.entries)
			c.entries = append(c.entries, Entry{
				Path: path,
				Name: e.name,
				Size: int64(len(data)),
				Data: data,
			})
		}
		return walk(e.right, prefix)
	}

	visited[0] = true
	if err := walk(r.dir[0].child, ""); err != nil {
		return nil, err
	}
	return c, nil
}

// Entries returns every stream in directory order.
func (c *Container) Entries() []Entry {
	return c.entries
}

func (c *Container) Paths() []string {
	paths := make([]string, len(c.entries))
	for i, e := range c.entries {
		paths[i] = e.Path
	}
	return paths
}

// Lookup returns the stream at the exact path, compared case-insensitively.
func (c *Container) Lookup(path string) (Entry, bool) {
	i, ok := c.byPath[strings.ToUpper(strings.Trim(path, "/"))]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Find returns the first stream whose last path segment equals name,
// ignoring case, wherever it sits in the tree.
func (c *Container) Find(name string) (Entry, bool) {
	for _, e := range c.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Sections returns the BodyText/SectionN streams ordered by N.
func (c *Container) Sections() ([]Entry, error) {
	type numbered struct {
		n     int
		entry Entry
	}
	var found []numbered
	for _, e := range c.entries {
		m := sectionPattern.FindStringSubmatch(strings.ToUpper(e.Path))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, entry: e})
	}
	if len(found) == 0 {
		return nil, apperrors.ErrNoBodySections
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]Entry, len(found))
	for i, f := range found {
		out[i] = f.entry
	}
	return out, nil
}
