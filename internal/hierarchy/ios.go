package hierarchy

import (
	"context"
	"encoding/xml"
	"strconv"

	"github.com/automobile-core/server/internal/wda"
)

// xcuiElement mirrors the XCUIElementType tree WebDriverAgent's /source
// returns; every element tag is its own type name with a common
// attribute set.
type xcuiElement struct {
	XMLName xml.Name
	Name    string        `xml:"name,attr"`
	Label   string        `xml:"label,attr"`
	Value   string        `xml:"value,attr"`
	Type    string        `xml:"type,attr"`
	Enabled string        `xml:"enabled,attr"`
	X       string        `xml:"x,attr"`
	Y       string        `xml:"y,attr"`
	Width   string        `xml:"width,attr"`
	Height  string        `xml:"height,attr"`
	Nested  []xcuiElement `xml:",any"`
}

// IOSNormalizer builds a common Tree out of a device's WebDriverAgent
// /source document.
type IOSNormalizer struct {
	pool *wda.Pool
}

// NewIOSNormalizer constructs an IOSNormalizer backed by a Host pool.
func NewIOSNormalizer(pool *wda.Pool) *IOSNormalizer {
	return &IOSNormalizer{pool: pool}
}

// Dump fetches /source for udid and normalises it into the common tree
// shape, synthesizing Android-style bounds strings from the XCUIElement
// frame rectangle (§4.5).
func (n *IOSNormalizer) Dump(ctx context.Context, udid string) (*Tree, error) {
	host, err := n.pool.Get(ctx, udid)
	if err != nil {
		return nil, err
	}
	src, err := host.Source(ctx)
	if err != nil {
		return nil, err
	}

	var root xcuiElement
	if err := xml.Unmarshal([]byte(src.XML), &root); err != nil {
		return nil, err
	}

	return &Tree{Root: Collapse(convertXCUIElement(&root)), RawXML: src.XML}, nil
}

func convertXCUIElement(x *xcuiElement) *Node {
	x2, y2, w, h := atoiSafe(x.X), atoiSafe(x.Y), atoiSafe(x.Width), atoiSafe(x.Height)
	n := &Node{
		Text:        x.Value,
		ContentDesc: x.Label,
		ResourceID:  x.Name,
		Bounds:      formatBounds(x2, y2, w, h),
		Enabled:     x.Enabled == "true" || x.Enabled == "1",
		Clickable:   isInteractiveType(x.Type),
		Class:       x.Type,
	}
	for i := range x.Nested {
		n.Children = append(n.Children, convertXCUIElement(&x.Nested[i]))
	}
	return n
}

func atoiSafe(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// isInteractiveType reports whether an XCUIElementType name denotes an
// element a user can tap, the iOS analogue of Android's clickable attr.
func isInteractiveType(t string) bool {
	switch t {
	case "XCUIElementTypeButton", "XCUIElementTypeCell", "XCUIElementTypeLink",
		"XCUIElementTypeTextField", "XCUIElementTypeSecureTextField",
		"XCUIElementTypeSwitch", "XCUIElementTypeSlider", "XCUIElementTypeKey":
		return true
	default:
		return false
	}
}
