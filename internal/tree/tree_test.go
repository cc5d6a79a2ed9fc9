package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct {
	Node
	name     string
	releases int
	log      *[]string
}

func newHandle(name string, log *[]string) *handle {
	h := &handle{name: name, log: log}
	h.Init(h.clearHandle)
	return h
}

// clearHandle follows the handle layer's order: release, cascade, unlink.
func (h *handle) clearHandle() {
	if !h.MarkInvalid() {
		return
	}
	Invalidate(&h.Node)
	h.releases++
	*h.log = append(*h.log, h.name)
	Unlink(&h.Node)
}

func TestLinkUnlink(t *testing.T) {
	var log []string
	root := newHandle("root", &log)
	a := newHandle("a", &log)
	b := newHandle("b", &log)
	c := newHandle("c", &log)

	Link(&root.Node, &a.Node)
	Link(&root.Node, &b.Node)
	Link(&root.Node, &c.Node)
	require.Equal(t, 3, root.Len())

	children := root.Children()
	assert.Equal(t, []*Node{&c.Node, &b.Node, &a.Node}, children)

	// Middle, head and tail removal.
	Unlink(&b.Node)
	assert.Equal(t, []*Node{&c.Node, &a.Node}, root.Children())
	Unlink(&c.Node)
	assert.Equal(t, []*Node{&a.Node}, root.Children())
	Unlink(&a.Node)
	assert.Equal(t, 0, root.Len())
	assert.False(t, a.Linked())
}

func TestUnlinkIdempotent(t *testing.T) {
	var log []string
	root := newHandle("root", &log)
	a := newHandle("a", &log)
	b := newHandle("b", &log)
	Link(&root.Node, &a.Node)
	Link(&root.Node, &b.Node)

	Unlink(&a.Node)
	Unlink(&a.Node)
	assert.Equal(t, []*Node{&b.Node}, root.Children())

	var orphan Node
	Unlink(&orphan)
	assert.Nil(t, orphan.Parent())
}

func TestLinkMovesBetweenParents(t *testing.T) {
	var log []string
	p1 := newHandle("p1", &log)
	p2 := newHandle("p2", &log)
	c := newHandle("c", &log)

	Link(&p1.Node, &c.Node)
	Link(&p2.Node, &c.Node)
	assert.Equal(t, 0, p1.Len())
	assert.Equal(t, 1, p2.Len())
	assert.Same(t, &p2.Node, c.Parent())
}

func TestInvalidateCascades(t *testing.T) {
	var log []string
	env := newHandle("env", &log)
	txn := newHandle("txn", &log)
	child := newHandle("child", &log)
	cur1 := newHandle("cur1", &log)
	cur2 := newHandle("cur2", &log)
	grand := newHandle("grand", &log)

	Link(&env.Node, &txn.Node)
	Link(&txn.Node, &child.Node)
	Link(&txn.Node, &cur1.Node)
	Link(&child.Node, &cur2.Node)
	Link(&child.Node, &grand.Node)

	env.clearHandle()

	for _, h := range []*handle{env, txn, child, cur1, cur2, grand} {
		assert.False(t, h.Valid(), h.name)
		assert.Equal(t, 1, h.releases, h.name)
		assert.False(t, h.Linked(), h.name)
		assert.Equal(t, 0, h.Len(), h.name)
	}

	// Descendants release before their ancestors.
	pos := func(name string) int {
		for i, n := range log {
			if n == name {
				return i
			}
		}
		return -1
	}
	assert.Less(t, pos("grand"), pos("child"))
	assert.Less(t, pos("cur2"), pos("child"))
	assert.Less(t, pos("child"), pos("txn"))
	assert.Less(t, pos("cur1"), pos("txn"))
	assert.Less(t, pos("txn"), pos("env"))
}

func TestClearTwice(t *testing.T) {
	var log []string
	parent := newHandle("parent", &log)
	child := newHandle("child", &log)
	Link(&parent.Node, &child.Node)

	child.clearHandle()
	child.clearHandle()
	parent.clearHandle()
	parent.clearHandle()

	assert.Equal(t, 1, child.releases)
	assert.Equal(t, 1, parent.releases)
	assert.Equal(t, []string{"child", "parent"}, log)
}

func TestValidMonotonic(t *testing.T) {
	var n Node
	assert.False(t, n.Valid())
	n.Init(nil)
	assert.True(t, n.Valid())
	assert.True(t, n.MarkInvalid())
	assert.False(t, n.MarkInvalid())
	assert.False(t, n.Valid())

	var nilNode *Node
	assert.False(t, nilNode.Valid())
}

func TestInvalidateWithoutClearRoutine(t *testing.T) {
	var root, a, b Node
	root.Init(nil)
	a.Init(nil)
	b.Init(nil)
	Link(&root, &a)
	Link(&a, &b)

	Invalidate(&root)
	assert.True(t, root.Valid())
	assert.False(t, a.Valid())
	assert.False(t, b.Valid())
	assert.Equal(t, 0, root.Len())
}
