// Package hierarchy implements the View-Hierarchy Dump (component E):
// obtaining the UI tree via uiautomator dump (Android) or WebDriverAgent
// /source (iOS) and normalising both into one common tree shape, per
// §4.5. Bounds parsing follows the teacher's selector.go (ParseBounds /
// Center).
package hierarchy

import (
	"fmt"
	"regexp"
	"strconv"
)

// Node is the common tree shape both platforms normalise into: text,
// content-desc, resource-id, bounds, enabled, clickable, class.
type Node struct {
	Text        string `json:"text"`
	ContentDesc string `json:"content-desc"`
	ResourceID  string `json:"resource-id"`
	Bounds      string `json:"bounds"`
	Enabled     bool   `json:"enabled"`
	Clickable   bool   `json:"clickable"`
	Class       string `json:"class"`

	Children []*Node `json:"children,omitempty"`
}

// Tree is a dumped hierarchy plus its raw source representation.
type Tree struct {
	Root   *Node
	RawXML string
}

// Bounds is a parsed "[x1,y1][x2,y2]" rectangle.
type Bounds struct {
	X1, Y1, X2, Y2 int
}

var boundsRe = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// ParseBounds parses the Android bounds string format, shared by the iOS
// normaliser which synthesizes the same format from a frame rect.
func ParseBounds(s string) (Bounds, error) {
	m := boundsRe.FindStringSubmatch(s)
	if len(m) != 5 {
		return Bounds{}, fmt.Errorf("invalid bounds format: %s", s)
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	return Bounds{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
}

// Center returns the bounds' midpoint, the coordinate every tap/swipe
// primitive resolves an element selector down to.
func (b Bounds) Center() (int, int) {
	return b.X1 + (b.X2-b.X1)/2, b.Y1 + (b.Y2-b.Y1)/2
}

func formatBounds(x, y, w, h int) string {
	return fmt.Sprintf("[%d,%d][%d,%d]", x, y, x+w, y+h)
}

// hasMeaningfulAttribute reports whether a node carries anything worth
// keeping on its own, per §4.5's "nodes lacking any meaningful attribute
// are collapsed into their children" rule.
func (n *Node) hasMeaningfulAttribute() bool {
	return n.Text != "" || n.ContentDesc != "" || n.ResourceID != "" || n.Clickable
}

// Walk visits every node in the tree depth-first, root first.
func Walk(n *Node, f func(*Node)) {
	if n == nil {
		return
	}
	f(n)
	for _, c := range n.Children {
		Walk(c, f)
	}
}

// Find returns the first node for which match returns true, depth-first.
func Find(root *Node, match func(*Node) bool) *Node {
	if root == nil {
		return nil
	}
	if match(root) {
		return root
	}
	for _, c := range root.Children {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}
