// Package identity derives the reported identity of execution nodes: names,
// descriptions, attributes, code references and test case ids.
package identity

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"rpmirror/internal/backend"
	"rpmirror/internal/node"

	"github.com/cespare/xxhash/v2"
)

// MaxNameLength is the longest item name sent to the backend, in runes.
const MaxNameLength = 1024

const ellipsis = "..."

// TestItem is the reported identity of one node.
type TestItem struct {
	Name        string
	Description string
	UniqueID    string
	Attributes  []backend.Attribute
}

// CaseID groups executions of the same logical test.
type CaseID struct {
	ID   string
	Hash int32
}

// TruncateName cuts names longer than MaxNameLength and appends an ellipsis.
func TruncateName(name string) string {
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxNameLength]) + ellipsis
}

// IsRetry reports whether n is one repetition of a repeated method.
// Containers, including the repetition group itself, are never retries.
func IsRetry(n *node.Node) bool {
	return !n.IsContainer() && n.Method != nil && n.Method.Repeated && n.Parent != nil
}

// Resolve builds the test item of n. A non-empty reason replaces the
// description. Repetitions take their name and unique id from the parent.
func Resolve(n *node.Node, reason string) TestItem {
	name, uniqueID := n.DisplayName, n.UniqueID
	if IsRetry(n) {
		name, uniqueID = n.Parent.DisplayName, n.Parent.UniqueID
	}

	description := n.DisplayName
	if n.Method != nil && n.Method.Description != "" {
		description = n.Method.Description
	}
	if reason != "" {
		description = reason
	}

	return TestItem{
		Name:        TruncateName(name),
		Description: description,
		UniqueID:    uniqueID,
		Attributes:  Attributes(n),
	}
}

// Attributes returns the node's tags as key-less attributes followed by the
// attributes declared on its method, deduplicated.
func Attributes(n *node.Node) []backend.Attribute {
	seen := make(map[backend.Attribute]struct{})
	var out []backend.Attribute
	add := func(a backend.Attribute) {
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	tags := append([]string(nil), n.Tags...)
	sort.Strings(tags)
	for _, t := range tags {
		add(backend.Attribute{Value: t})
	}
	if n.Method != nil {
		for _, a := range n.Method.Attributes {
			add(a)
		}
	}
	return out
}

// MethodReference is the code reference of a method: DeclaringType.Name.
func MethodReference(m *node.Method) string {
	if m.DeclaringType == "" {
		return m.Name
	}
	return m.DeclaringType + "." + m.Name
}

// CodeReference walks from n towards the root. The first method found
// anchors the reference; display names of the method-less nodes passed on
// the way are appended as $-separated suffixes. Without any method the
// reference is the chain of display names.
func CodeReference(n *node.Node) string {
	suffix := ""
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Method != nil {
			return appendSuffix(MethodReference(cur.Method), suffix)
		}
		suffix = appendSuffix(cur.DisplayName, suffix)
	}
	return suffix
}

func appendSuffix(s, suffix string) string {
	if suffix == "" {
		return s
	}
	return s + "$" + suffix
}

// HookKey is the synthetic unique id of a before/after hook item.
func HookKey(parentKey, methodName string) string {
	return parentKey + "/[method:" + methodName + "()]"
}

// FormatArguments renders invocation arguments as "[a, b]".
func FormatArguments(args []interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Hash is the 32-bit case hash of s.
func Hash(s string) int32 {
	h := xxhash.Sum64String(s)
	return int32(uint32(h ^ h>>32))
}

// CaseIdentity computes the case id of a method invocation: an explicit id
// hashed on itself, a parametrized id built from the arguments, or the code
// reference combined with the arguments.
func CaseIdentity(m *node.Method, codeRef string, args []interface{}) CaseID {
	if m != nil && m.CaseID != nil {
		if m.CaseID.Parametrized {
			id := parametrizedID(m.CaseID, args)
			return CaseID{ID: id, Hash: Hash(id)}
		}
		if m.CaseID.Value != "" {
			return CaseID{ID: m.CaseID.Value, Hash: Hash(m.CaseID.Value)}
		}
	}
	id := codeRef
	if len(args) > 0 {
		id += FormatArguments(args)
	}
	return CaseID{ID: id, Hash: Hash(id)}
}

func parametrizedID(a *node.CaseIDAnnotation, args []interface{}) string {
	selected := args
	if len(a.KeyArgs) > 0 {
		selected = make([]interface{}, 0, len(a.KeyArgs))
		for _, i := range a.KeyArgs {
			if i >= 0 && i < len(args) {
				selected = append(selected, args[i])
			}
		}
	}
	return a.Value + FormatArguments(selected)
}

// ClassCaseIdentity is the case id of a container declared by a type.
func ClassCaseIdentity(testClass string) CaseID {
	return CaseID{ID: testClass, Hash: Hash(testClass)}
}

// HookCaseIdentity is the case id of a hook method: its explicit id or its
// code reference.
func HookCaseIdentity(m *node.Method) CaseID {
	if m.CaseID != nil && m.CaseID.Value != "" {
		return CaseID{ID: m.CaseID.Value, Hash: Hash(m.CaseID.Value)}
	}
	ref := MethodReference(m)
	return CaseID{ID: ref, Hash: Hash(ref)}
}
