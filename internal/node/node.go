// Package node models the execution tree delivered by a test framework
// driver. Nodes are created by the driver and read-only for the observer.
package node

import (
	"rpmirror/internal/backend"
)

// Kind classifies a node.
type Kind int

const (
	// KindContainer is a suite-like node (a class, a package)
	KindContainer Kind = iota
	// KindTemplate is a container whose children are invocations of one
	// parameterized or repeated method
	KindTemplate
	// KindTest is a leaf test method
	KindTest
	// KindDynamic is a test generated at run time by a factory or a parent test
	KindDynamic
)

// String returns a readable kind name.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindTemplate:
		return "template"
	case KindTest:
		return "test"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// CaseIDAnnotation is an explicit test case id declared on a method.
type CaseIDAnnotation struct {
	// Value is the declared id; may be empty when Parametrized is set
	Value string
	// Parametrized derives the id from the invocation arguments
	Parametrized bool
	// KeyArgs selects which argument positions form the id; empty means all
	KeyArgs []int
}

// Method is the callable associated with a node.
type Method struct {
	// DeclaringType is the fully qualified type (or package) that declares the method
	DeclaringType string
	// Name is the method name
	Name string
	// Repeated marks a method executed several times as repetitions of one test
	Repeated bool
	// CaseID is an explicit case id override
	CaseID *CaseIDAnnotation
	// Attributes are declared on the method in addition to the node's tags
	Attributes []backend.Attribute
	// Description overrides the display name as item description
	Description string
}

// Node is one execution node.
type Node struct {
	UniqueID    string
	Parent      *Node
	DisplayName string
	Tags        []string
	// Method is set for method-bearing nodes (tests, templates, hooks' owners)
	Method *Method
	// TestClass is the declaring type of a container, if any
	TestClass string
	Kind      Kind
}

// IsContainer reports whether the node is suite-like.
func (n *Node) IsContainer() bool {
	return n.Kind == KindContainer || n.Kind == KindTemplate
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// Root returns the top-level ancestor.
func (n *Node) Root() *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// ParentID returns the parent's unique id or "" for root nodes.
func (n *Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return n.Parent.UniqueID
}

// TestMethod returns the first method found walking from n towards the root.
func (n *Node) TestMethod() *Method {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Method != nil {
			return cur.Method
		}
	}
	return nil
}
