package tree

import (
	"fmt"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// NodeID is the stable arena index of a node
type NodeID int32

// NoNode terminates node lists
const NoNode NodeID = -1

// Kind is the role a node currently plays
type Kind uint8

const (
	// KindErased nodes sit on the erased list and own an erased block.
	KindErased Kind = iota
	// KindBad nodes sit on the bad list and own a defective block.
	KindBad
	// KindDir nodes locate a directory.
	KindDir
	// KindFile nodes locate a file.
	KindFile
	// KindData nodes locate a file data extent.
	KindData
)

// String returns the lower case name of the kind
func (k Kind) String() string {
	switch k {
	case KindErased:
		return "erased"
	case KindBad:
		return "bad"
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// KindOf maps an object type onto the node kind that indexes it
func KindOf(t types.ObjectType) Kind {
	switch t {
	case types.ObjectDir:
		return KindDir
	case types.ObjectFile:
		return KindFile
	default:
		return KindData
	}
}

// ObjectType maps an object kind back to its tag type
func (k Kind) ObjectType() types.ObjectType {
	switch k {
	case KindDir:
		return types.ObjectDir
	case KindFile:
		return types.ObjectFile
	default:
		return types.ObjectData
	}
}

// Node maps one object, or one free or bad block, to a physical block.
// Nodes live in the tree's arena for the lifetime of the tree, so a *Node
// stays valid across recovery: only Block changes when an object moves.
type Node struct {
	Kind   Kind
	Block  types.BlockNum
	Parent types.Serial
	Serial types.Serial

	// Sum is the name checksum of a directory or file.
	Sum uint16

	// Len is the byte length of a file, or the bytes held by a data extent.
	Len uint32

	id         NodeID
	prev, next NodeID
	loc        location
}

type location uint8

const (
	detached location = iota
	onErasedList
	onBadList
	inTable
)

// ID returns the node's arena index
func (n *Node) ID() NodeID {
	return n.id
}

// IsObject reports whether the node indexes a directory, file or data extent
func (n *Node) IsObject() bool {
	return n.Kind == KindDir || n.Kind == KindFile || n.Kind == KindData
}

func (n *Node) String() string {
	return fmt.Sprintf("%s node block=%d parent=%d serial=%d", n.Kind, n.Block, n.Parent, n.Serial)
}
