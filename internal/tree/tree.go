// Package tree links handles into the parent/child structure that cascades
// teardown from a closed, committed or aborted handle to everything derived
// from it.
//
// Children hang off a parent through an intrusive doubly-linked sibling list
// rooted at the parent's single children pointer, so linking and unlinking
// are O(1) and need no per-edge bookkeeping.
package tree

// Node is embedded by every tracked handle.
//
// A node is valid from Init until MarkInvalid; validity never comes back.
// The clear routine is the owner's single teardown path and is called both
// for explicit close and for cascading invalidation. It must be safe to call
// twice.
type Node struct {
	valid    bool
	parent   *Node
	prev     *Node
	next     *Node
	children *Node
	clear    func()
}

// Init marks the node valid and records its teardown routine.
func (n *Node) Init(clear func()) {
	n.valid = true
	n.clear = clear
}

// Valid reports whether the node has not been invalidated yet.
func (n *Node) Valid() bool {
	return n != nil && n.valid
}

// MarkInvalid flips the node to invalid. It reports whether this call did
// the flip, so the caller knows it owns the rest of the teardown.
func (n *Node) MarkInvalid() bool {
	if n == nil || !n.valid {
		return false
	}
	n.valid = false
	return true
}

// Parent returns the node this one is linked under, or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Linked reports whether the node currently sits in a parent's list.
func (n *Node) Linked() bool {
	return n.parent != nil
}

// Len returns the number of direct children.
func (n *Node) Len() int {
	count := 0
	for c := n.children; c != nil; c = c.next {
		count++
	}
	return count
}

// Children returns a snapshot of the direct children, most recently linked
// first.
func (n *Node) Children() []*Node {
	var out []*Node
	for c := n.children; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// Link inserts child at the head of parent's children. A child already
// linked elsewhere is moved.
func Link(parent, child *Node) {
	if child.parent != nil {
		Unlink(child)
	}
	child.parent = parent
	child.prev = nil
	child.next = parent.children
	if parent.children != nil {
		parent.children.prev = child
	}
	parent.children = child
}

// Unlink removes child from its parent's list. Unlinking a node that is not
// linked is a no-op.
func Unlink(child *Node) {
	p := child.parent
	if p == nil {
		return
	}
	if child.prev != nil {
		child.prev.next = child.next
	} else if p.children == child {
		p.children = child.next
	}
	if child.next != nil {
		child.next.prev = child.prev
	}
	child.parent = nil
	child.prev = nil
	child.next = nil
}

// Invalidate runs the clear routine of every direct child of n. Children are
// captured before the first clear runs because each clear unlinks itself.
// Grandchildren are handled by the children's own clear routines.
func Invalidate(n *Node) {
	snapshot := n.Children()
	for _, c := range snapshot {
		c.clearNode()
	}
}

func (n *Node) clearNode() {
	if n.clear != nil {
		n.clear()
		return
	}
	if n.MarkInvalid() {
		Invalidate(n)
	}
	Unlink(n)
}
