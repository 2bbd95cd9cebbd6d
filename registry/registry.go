// Package registry implements the resource registry: a trie of path
// segments mapping to handlers, with overlap-rejecting registration
// and parent-pointer-based unregistration. Children are owned by their
// parent node; parent links are non-owning back-references used only
// for bottom-up pruning.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/transport"
)

// Handler answers a request already routed to it. The dispatcher
// rewrites req.Target's path to the residual segments Lookup returned
// before invoking it. residual holds the bytes that arrived on the
// connection after the request itself; a handler answering 101 must
// treat them as the initial payload of the new protocol.
type Handler func(req *http.Request, conn transport.Connection, residual []byte) *http.Response

type node struct {
	segment  string
	parent   *node
	children map[string]*node
	handler  Handler
}

// Registry is a segment trie of registered Handlers. Not internally
// synchronized: like config.Configuration, it's one of the pieces of
// state the Server's single core mutex serializes access to.
type Registry struct {
	root *node
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{root: newNode("", nil)}
}

func newNode(segment string, parent *node) *node {
	return &node{segment: segment, parent: parent, children: make(map[string]*node)}
}

// Split breaks an absolute path into the segment form Register, Lookup
// and the unregister closures expect.
func Split(path string) []string {
	return strings.Split(path, "/")
}

// Register walks/creates the trie along segments from the root and
// stores handler at the final node. It rejects (returns a nil
// unregister func and ok=false) if any intermediate node already has a
// handler — that would make the new registration unreachable and the
// existing one ambiguous — or if the final node already has a handler
// or non-empty children of its own.
func (r *Registry) Register(segments []string, handler Handler) (unregister func(), ok bool) {
	segments = trimLeadingEmpty(segments)

	cur := r.root
	for _, seg := range segments {
		if cur.handler != nil {
			return nil, false
		}

		child, exists := cur.children[seg]
		if !exists {
			child = newNode(seg, cur)
			cur.children[seg] = child
		}

		cur = child
	}

	if cur.handler != nil || len(cur.children) > 0 {
		return nil, false
	}

	cur.handler = handler
	target := cur

	var once sync.Once

	return func() {
		once.Do(func() { unregisterNode(target) })
	}, true
}

// unregisterNode clears target's handler, then walks up the parent
// chain pruning any node left both handler-less and childless. Once
// every registration has been pruned this way, the root ends up with
// no children, so an emptied registry needs no separate reset.
func unregisterNode(target *node) {
	target.handler = nil

	cur := target
	for cur.parent != nil && cur.handler == nil && len(cur.children) == 0 {
		parent := cur.parent
		delete(parent.children, cur.segment)
		cur = parent
	}
}

// Lookup walks the trie while segments match children, consuming one
// leading empty segment first (absolute paths split to a leading "").
// It returns the deepest handler found along the descent, paired with
// the segments left over past that handler's node, or a nil Handler if
// none was found at all.
func (r *Registry) Lookup(segments []string) (Handler, []string) {
	segments = trimLeadingEmpty(segments)

	cur := r.root

	var (
		deepest  Handler
		residual []string
	)

	if cur.handler != nil {
		deepest = cur.handler
		residual = segments
	}

	for i, seg := range segments {
		child, exists := cur.children[seg]
		if !exists {
			break
		}

		cur = child
		if cur.handler != nil {
			deepest = cur.handler
			residual = segments[i+1:]
		}
	}

	return deepest, residual
}

// Dump lists every currently-registered absolute path, sorted, for
// diagnostics subscribers reporting the resource tree.
func (r *Registry) Dump() []string {
	var paths []string

	var walk func(n *node, prefix string)
	walk = func(n *node, prefix string) {
		if n.handler != nil {
			if prefix == "" {
				paths = append(paths, "/")
			} else {
				paths = append(paths, prefix)
			}
		}

		for seg, child := range n.children {
			walk(child, prefix+"/"+seg)
		}
	}

	walk(r.root, "")
	sort.Strings(paths)

	return paths
}

func trimLeadingEmpty(segments []string) []string {
	if len(segments) > 0 && segments[0] == "" {
		return segments[1:]
	}

	return segments
}
