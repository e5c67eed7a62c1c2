package page

import "fmt"

// Size is the fixed byte size of every Page, matching the "e.g. 64 KiB"
// page size called out for the row store.
const Size = 64 * 1024

// GranuleSize is the fixed size of a var-len granule chunk allocated from
// the tail of a page for small strings/arrays that don't need the blob
// store.
const GranuleSize = 64

// SlotIndex addresses one row slot within a Page.
type SlotIndex uint16

// noFreeSlot is the free-list terminator: no more free slots chained.
const noFreeSlot = SlotIndex(0xFFFF)

// Page is a fixed-size buffer holding a dense array of fixed-length row
// slots for one table's BFLATN row layout, plus a tail region used to
// allocate fixed-size var-len granules. Slots are either live or chained
// into a singly-linked free list threaded through the first two bytes of
// each free slot (the slot's payload is unused while free, so this costs
// nothing extra).
type Page struct {
	rowSize    uint32
	numSlots   uint16
	buf        []byte
	freeHead   SlotIndex
	liveCount  uint16
	granuleTop uint32 // byte offset of the next unallocated granule, growing downward from Size
}

// NewPage allocates a zeroed page sized for rows of rowSize bytes.
func NewPage(rowSize uint32) *Page {
	if rowSize == 0 {
		panic("page: rowSize must be > 0")
	}
	numSlots := uint16(Size / rowSize)
	p := &Page{
		rowSize:    rowSize,
		numSlots:   numSlots,
		buf:        make([]byte, Size),
		freeHead:   0,
		granuleTop: Size,
	}
	// Thread every slot onto the free list in ascending order.
	for i := uint16(0); i < numSlots; i++ {
		next := noFreeSlot
		if i+1 < numSlots {
			next = SlotIndex(i + 1)
		}
		p.writeNextFree(SlotIndex(i), next)
	}
	return p
}

func (p *Page) slotOffset(s SlotIndex) uint32 {
	return uint32(s) * p.rowSize
}

func (p *Page) writeNextFree(s SlotIndex, next SlotIndex) {
	off := p.slotOffset(s)
	p.buf[off] = byte(next)
	p.buf[off+1] = byte(next >> 8)
}

func (p *Page) readNextFree(s SlotIndex) SlotIndex {
	off := p.slotOffset(s)
	return SlotIndex(p.buf[off]) | SlotIndex(p.buf[off+1])<<8
}

// ErrPageFull is returned by Allocate when no free row slot remains.
var ErrPageFull = fmt.Errorf("page: no free row slot")

// Allocate claims a free slot and returns its index and backing bytes
// (rowSize long, zeroed), or ErrPageFull.
func (p *Page) Allocate() (SlotIndex, []byte, error) {
	if p.freeHead == noFreeSlot {
		return 0, nil, ErrPageFull
	}
	s := p.freeHead
	p.freeHead = p.readNextFree(s)
	p.liveCount++

	off := p.slotOffset(s)
	row := p.buf[off : off+p.rowSize]
	for i := range row {
		row[i] = 0
	}
	return s, row, nil
}

// Row returns the backing bytes for a previously-allocated slot.
func (p *Page) Row(s SlotIndex) []byte {
	off := p.slotOffset(s)
	return p.buf[off : off+p.rowSize]
}

// Free returns a slot to the free list.
func (p *Page) Free(s SlotIndex) {
	p.writeNextFree(s, p.freeHead)
	p.freeHead = s
	p.liveCount--
}

// LiveCount returns the number of currently-allocated row slots.
func (p *Page) LiveCount() uint16 {
	return p.liveCount
}

// NumSlots returns the total row-slot capacity of the page.
func (p *Page) NumSlots() uint16 {
	return p.numSlots
}

// ErrPageOutOfGranules is returned by AllocateGranule when the tail region
// has no room left for another granule.
var ErrPageOutOfGranules = fmt.Errorf("page: no room for var-len granule")

// AllocateGranule carves one GranuleSize chunk from the tail of the page
// and returns its byte offset. Granules grow downward from the end of the
// page and can collide with the row-slot region once enough rows and
// granules have been allocated; callers must fall back to the blob store
// when this returns ErrPageOutOfGranules.
func (p *Page) AllocateGranule() (uint32, error) {
	rowRegionEnd := uint32(p.numSlots) * p.rowSize
	if p.granuleTop < GranuleSize || p.granuleTop-GranuleSize < rowRegionEnd {
		return 0, ErrPageOutOfGranules
	}
	p.granuleTop -= GranuleSize
	return p.granuleTop, nil
}

// Granule returns the GranuleSize bytes at the given offset, as previously
// returned by AllocateGranule.
func (p *Page) Granule(offset uint32) []byte {
	return p.buf[offset : offset+GranuleSize]
}
