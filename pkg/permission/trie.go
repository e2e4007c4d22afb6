// Package permission evaluates shiro-style permission strings such as
// "dm-entry:58b9a1f5:to-do-list:read,update".
//
// A permission is a colon separated list of parts. Each part may list
// alternatives separated by commas, and "*" matches any value. A permission
// implies every longer permission that shares its prefix, so "a:b" grants
// "a:b:c".
package permission

import (
	"strings"
	"sync"
)

const (
	partSep = ":"
	altSep  = ","
	wild    = "*"
)

type node struct {
	children map[string]*node
	terminal bool
}

func newNode() *node {
	return &node{children: map[string]*node{}}
}

// Trie holds a set of granted permissions. It is safe for concurrent use.
type Trie struct {
	mu   sync.RWMutex
	root *node
}

// New returns a trie granting perms.
func New(perms ...string) *Trie {
	t := &Trie{root: newNode()}
	t.Add(perms...)
	return t
}

// Add grants perms. Empty strings are ignored.
func (t *Trie) Add(perms ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		add(t.root, split(p))
	}
}

func add(n *node, parts [][]string) {
	if len(parts) == 0 {
		n.terminal = true
		return
	}
	for _, alt := range parts[0] {
		child, ok := n.children[alt]
		if !ok {
			child = newNode()
			n.children[alt] = child
		}
		add(child, parts[1:])
	}
}

// Check reports whether expr is granted. Every alternative listed in expr
// must be granted.
func (t *Trie) Check(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return check(t.root, split(expr))
}

func check(n *node, parts [][]string) bool {
	if n.terminal {
		return true
	}
	if len(parts) == 0 {
		if w, ok := n.children[wild]; ok {
			return check(w, nil)
		}
		return false
	}
	for _, alt := range parts[0] {
		if !checkAlt(n, alt, parts[1:]) {
			return false
		}
	}
	return true
}

func checkAlt(n *node, alt string, rest [][]string) bool {
	if child, ok := n.children[alt]; ok && check(child, rest) {
		return true
	}
	if w, ok := n.children[wild]; ok && alt != wild {
		return check(w, rest)
	}
	return false
}

func split(p string) [][]string {
	raw := strings.Split(p, partSep)
	parts := make([][]string, 0, len(raw))
	for _, part := range raw {
		var alts []string
		for _, a := range strings.Split(part, altSep) {
			if a = strings.TrimSpace(a); a != "" {
				alts = append(alts, a)
			}
		}
		if len(alts) == 0 {
			alts = []string{wild}
		}
		parts = append(parts, alts)
	}
	return parts
}
