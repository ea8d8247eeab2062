package tree

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Hash table sizes; each must be a power of two.
const (
	dirHashSize  = 0x20
	fileHashSize = 0x40
	dataHashSize = 0x200
)

func dirHash(serial types.Serial) int {
	return int(serial) & (dirHashSize - 1)
}

func fileHash(serial types.Serial) int {
	return int(serial) & (fileHashSize - 1)
}

func dataHash(parent, serial types.Serial) int {
	return (int(parent) + int(serial)) & (dataHashSize - 1)
}

// NameLoader reads the stored name of a directory or file node
type NameLoader func(n *Node) (string, error)

// Tree is the in-memory index from object identity to physical block. It
// holds exactly one node per block of the device. It is not safe for
// concurrent use.
type Tree struct {
	geo   types.Geometry
	log   *logrus.Entry
	nodes []Node

	dirs  [dirHashSize][]NodeID
	files [fileHashSize][]NodeID
	data  [dataHashSize][]NodeID

	erasedHead, erasedTail NodeID
	erasedCount            int

	badHead, badTail NodeID
	badCount         int

	suspended map[types.Serial]struct{}
	maxSerial types.Serial
}

// Stats summarises the tree's population
type Stats struct {
	Dirs      int          `json:"dirs" yaml:"dirs"`
	Files     int          `json:"files" yaml:"files"`
	Data      int          `json:"data" yaml:"data"`
	Erased    int          `json:"erased" yaml:"erased"`
	Bad       int          `json:"bad" yaml:"bad"`
	MaxSerial types.Serial `json:"max_serial" yaml:"max_serial"`
}

// New creates an empty tree with one arena node per device block
func New(geo types.Geometry, log *logrus.Entry) *Tree {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Tree{
		geo:   geo,
		log:   log.WithField("component", "tree"),
		nodes: make([]Node, geo.TotalBlocks),
	}
	t.Init()
	return t
}

// Init clears every table and list. Each node is detached and reset to own
// the block with its own index.
func (t *Tree) Init() {
	for i := range t.nodes {
		t.nodes[i] = Node{
			Kind:   KindErased,
			Block:  types.BlockNum(i),
			Parent: types.InvalidSerial,
			Serial: types.InvalidSerial,
			id:     NodeID(i),
			prev:   NoNode,
			next:   NoNode,
		}
	}
	t.dirs = [dirHashSize][]NodeID{}
	t.files = [fileHashSize][]NodeID{}
	t.data = [dataHashSize][]NodeID{}
	t.erasedHead, t.erasedTail, t.erasedCount = NoNode, NoNode, 0
	t.badHead, t.badTail, t.badCount = NoNode, NoNode, 0
	t.suspended = make(map[types.Serial]struct{})
	t.maxSerial = types.RootDirSerial
}

// Node returns the arena node with the given id
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Geometry returns the device layout the tree was built for
func (t *Tree) Geometry() types.Geometry {
	return t.geo
}

func (t *Tree) bucket(kind Kind, parent, serial types.Serial) *[]NodeID {
	switch kind {
	case KindDir:
		return &t.dirs[dirHash(serial)]
	case KindFile:
		return &t.files[fileHash(serial)]
	case KindData:
		return &t.data[dataHash(parent, serial)]
	default:
		panic(errors.AssertionFailedf("no hash table for %s nodes", kind))
	}
}

func (t *Tree) scan(kind Kind, parent, serial types.Serial) *Node {
	for _, id := range *t.bucket(kind, parent, serial) {
		n := &t.nodes[id]
		if n.Serial != serial {
			continue
		}
		if kind == KindData && n.Parent != parent {
			continue
		}
		return n
	}
	return nil
}

// FindDir returns the directory node with the given serial, or nil
func (t *Tree) FindDir(serial types.Serial) *Node {
	return t.scan(KindDir, 0, serial)
}

// FindFile returns the file node with the given serial, or nil
func (t *Tree) FindFile(serial types.Serial) *Node {
	return t.scan(KindFile, 0, serial)
}

// FindData returns the data extent node of a file, or nil
func (t *Tree) FindData(parent, serial types.Serial) *Node {
	return t.scan(KindData, parent, serial)
}

// Find returns the node indexing an object of the given type, or nil
func (t *Tree) Find(typ types.ObjectType, parent, serial types.Serial) *Node {
	switch typ {
	case types.ObjectDir:
		return t.FindDir(serial)
	case types.ObjectFile:
		return t.FindFile(serial)
	default:
		return t.FindData(parent, serial)
	}
}

// FindBySerial returns the directory or file node with the given serial
func (t *Tree) FindBySerial(serial types.Serial) *Node {
	if n := t.FindDir(serial); n != nil {
		return n
	}
	return t.FindFile(serial)
}

func (t *Tree) table(kind Kind) [][]NodeID {
	switch kind {
	case KindDir:
		return t.dirs[:]
	case KindFile:
		return t.files[:]
	default:
		return t.data[:]
	}
}

// FindByName looks up a child of a directory by name. Candidates are
// filtered by name checksum, then confirmed against the name stored on
// flash.
func (t *Tree) FindByName(dir types.Serial, name string, kind Kind, load NameLoader) (*Node, error) {
	sum := pages.NameSum(name)
	for _, bucket := range t.table(kind) {
		for _, id := range bucket {
			n := &t.nodes[id]
			if n.Parent != dir || n.Sum != sum {
				continue
			}
			stored, err := load(n)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read name of serial %d", n.Serial)
			}
			if stored == name {
				return n, nil
			}
		}
	}
	return nil, nil
}

// Children returns the directories and files whose parent is dir
func (t *Tree) Children(dir types.Serial) []*Node {
	var out []*Node
	for _, kind := range []Kind{KindDir, KindFile} {
		for _, bucket := range t.table(kind) {
			for _, id := range bucket {
				n := &t.nodes[id]
				if n.Parent == dir && n.Serial != dir {
					out = append(out, n)
				}
			}
		}
	}
	return out
}

// DataExtents returns the data extent nodes of a file
func (t *Tree) DataExtents(file types.Serial) []*Node {
	var out []*Node
	for _, bucket := range t.data {
		for _, id := range bucket {
			if n := &t.nodes[id]; n.Parent == file {
				out = append(out, n)
			}
		}
	}
	return out
}

// Insert indexes an object node. The node must be detached and must not
// duplicate a serial already in use; either is an internal consistency
// violation.
func (t *Tree) Insert(n *Node) {
	if !n.IsObject() {
		panic(errors.AssertionFailedf("inserting %s node into object table", n.Kind))
	}
	if n.loc != detached {
		panic(errors.AssertionFailedf("inserting attached node %s", n))
	}
	switch n.Kind {
	case KindDir, KindFile:
		if dup := t.FindBySerial(n.Serial); dup != nil {
			panic(errors.AssertionFailedf("duplicate serial %d: %s", n.Serial, dup))
		}
	case KindData:
		if dup := t.FindData(n.Parent, n.Serial); dup != nil {
			panic(errors.AssertionFailedf("duplicate data extent %d/%d: %s", n.Parent, n.Serial, dup))
		}
	}

	b := t.bucket(n.Kind, n.Parent, n.Serial)
	*b = append(*b, n.id)
	n.loc = inTable
	if n.Kind != KindData && n.Serial > t.maxSerial && n.Serial <= types.MaxFsnSerial {
		t.maxSerial = n.Serial
	}
}

// Remove detaches an object node from its hash table
func (t *Tree) Remove(n *Node) {
	if n.loc != inTable {
		panic(errors.AssertionFailedf("removing node not in a table: %s", n))
	}
	b := t.bucket(n.Kind, n.Parent, n.Serial)
	for i, id := range *b {
		if id == n.id {
			*b = append((*b)[:i], (*b)[i+1:]...)
			n.loc = detached
			return
		}
	}
	panic(errors.AssertionFailedf("node missing from its bucket: %s", n))
}

// AllocateSerial returns the lowest directory/file serial not in use and not
// suspended
func (t *Tree) AllocateSerial() (types.Serial, error) {
	for s := types.RootDirSerial + 1; s <= types.MaxFsnSerial; s++ {
		if _, held := t.suspended[s]; held {
			continue
		}
		if t.FindBySerial(s) == nil {
			return s, nil
		}
	}
	return types.InvalidSerial, types.ErrNoFreeSerial
}

// Suspend withholds a serial from allocation, typically while the blocks of
// a deleted object are being erased
func (t *Tree) Suspend(serial types.Serial) {
	t.suspended[serial] = struct{}{}
}

// Resume returns a suspended serial to the allocator
func (t *Tree) Resume(serial types.Serial) {
	delete(t.suspended, serial)
}

// IsSuspended reports whether a serial is withheld from allocation
func (t *Tree) IsSuspended(serial types.Serial) bool {
	_, ok := t.suspended[serial]
	return ok
}

// GetErasedNode pops the head of the erased list. The node is detached and
// owns an erased block.
func (t *Tree) GetErasedNode() (*Node, error) {
	if t.erasedHead == NoNode {
		return nil, types.ErrOutOfSpace
	}
	n := &t.nodes[t.erasedHead]
	t.unlinkErased(n)
	return n, nil
}

func (t *Tree) unlinkErased(n *Node) {
	if n.prev != NoNode {
		t.nodes[n.prev].next = n.next
	} else {
		t.erasedHead = n.next
	}
	if n.next != NoNode {
		t.nodes[n.next].prev = n.prev
	} else {
		t.erasedTail = n.prev
	}
	n.prev, n.next = NoNode, NoNode
	n.loc = detached
	t.erasedCount--
}

func (t *Tree) prepareFree(n *Node, kind Kind) {
	if n.loc != detached {
		panic(errors.AssertionFailedf("listing attached node %s", n))
	}
	n.Kind = kind
	n.Parent, n.Serial = types.InvalidSerial, types.InvalidSerial
	n.Sum, n.Len = 0, 0
}

// InsertErasedTail appends a detached node owning an erased block
func (t *Tree) InsertErasedTail(n *Node) {
	t.prepareFree(n, KindErased)
	n.prev, n.next = t.erasedTail, NoNode
	if t.erasedTail != NoNode {
		t.nodes[t.erasedTail].next = n.id
	} else {
		t.erasedHead = n.id
	}
	t.erasedTail = n.id
	n.loc = onErasedList
	t.erasedCount++
}

// InsertErasedHead prepends a detached node owning an erased block
func (t *Tree) InsertErasedHead(n *Node) {
	t.prepareFree(n, KindErased)
	n.prev, n.next = NoNode, t.erasedHead
	if t.erasedHead != NoNode {
		t.nodes[t.erasedHead].prev = n.id
	} else {
		t.erasedTail = n.id
	}
	t.erasedHead = n.id
	n.loc = onErasedList
	t.erasedCount++
}

// InsertBad appends a detached node owning a defective block
func (t *Tree) InsertBad(n *Node) {
	t.prepareFree(n, KindBad)
	n.prev, n.next = NoNode, NoNode
	if t.badTail != NoNode {
		t.nodes[t.badTail].next = n.id
	} else {
		t.badHead = n.id
	}
	t.badTail = n.id
	n.loc = onBadList
	t.badCount++
}

// ErasedCount returns the number of erased blocks available
func (t *Tree) ErasedCount() int {
	return t.erasedCount
}

// BadCount returns the number of blocks retired as bad
func (t *Tree) BadCount() int {
	return t.badCount
}

// ErasedBlocks lists erased blocks in allocation order
func (t *Tree) ErasedBlocks() []types.BlockNum {
	out := make([]types.BlockNum, 0, t.erasedCount)
	for id := t.erasedHead; id != NoNode; id = t.nodes[id].next {
		out = append(out, t.nodes[id].Block)
	}
	return out
}

// BadBlocks lists blocks retired as bad
func (t *Tree) BadBlocks() []types.BlockNum {
	out := make([]types.BlockNum, 0, t.badCount)
	for id := t.badHead; id != NoNode; id = t.nodes[id].next {
		out = append(out, t.nodes[id].Block)
	}
	return out
}

// Stats returns the population of every table and list
func (t *Tree) Stats() Stats {
	s := Stats{Erased: t.erasedCount, Bad: t.badCount, MaxSerial: t.maxSerial}
	for _, b := range t.dirs {
		s.Dirs += len(b)
	}
	for _, b := range t.files {
		s.Files += len(b)
	}
	for _, b := range t.data {
		s.Data += len(b)
	}
	return s
}
