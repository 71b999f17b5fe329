package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBoundsAndCenter(t *testing.T) {
	b, err := ParseBounds("[10,20][110,220]")
	require.NoError(t, err)
	require.Equal(t, Bounds{X1: 10, Y1: 20, X2: 110, Y2: 220}, b)

	x, y := b.Center()
	require.Equal(t, 60, x)
	require.Equal(t, 120, y)
}

func TestParseBounds_Invalid(t *testing.T) {
	_, err := ParseBounds("not bounds")
	require.Error(t, err)
}

func TestParseAndroidXML_SingleRoot(t *testing.T) {
	xmlContent := `<?xml version='1.0'?><hierarchy><node text="Root" class="android.widget.FrameLayout" bounds="[0,0][100,100]">` +
		`<node text="Hello" clickable="true" bounds="[0,0][50,50]" class="android.widget.Button"/>` +
		`</node></hierarchy>`
	root, err := parseAndroidXML(xmlContent)
	require.NoError(t, err)
	require.Equal(t, "Root", root.Text)
	require.Len(t, root.Children, 1)
	require.Equal(t, "Hello", root.Children[0].Text)
	require.True(t, root.Children[0].Clickable)
}

func TestCleanXML(t *testing.T) {
	noisy := "garbage-before<?xml version='1.0'?><hierarchy></hierarchy>trailing-noise"
	require.Equal(t, "<?xml version='1.0'?><hierarchy></hierarchy>", cleanXML(noisy))
}

func TestCollapse_RemovesMeaninglessNodes(t *testing.T) {
	root := &Node{
		Class: "android.widget.FrameLayout",
		Children: []*Node{
			{
				Class: "android.widget.LinearLayout",
				Children: []*Node{
					{Text: "Hello", Clickable: true, Class: "android.widget.Button"},
				},
			},
		},
	}
	Collapse(root)
	require.Len(t, root.Children, 1)
	require.Equal(t, "Hello", root.Children[0].Text)
}

func TestCollapse_KeepsMeaningfulSiblings(t *testing.T) {
	root := &Node{
		Children: []*Node{
			{ResourceID: "com.example:id/title", Text: "Title"},
			{Class: "android.view.View"},
			{ContentDesc: "icon"},
		},
	}
	Collapse(root)
	require.Len(t, root.Children, 2)
}

func TestWalkAndFind(t *testing.T) {
	root := &Node{
		Text: "root",
		Children: []*Node{
			{Text: "a"},
			{Text: "b", Children: []*Node{{Text: "c"}}},
		},
	}
	var seen []string
	Walk(root, func(n *Node) { seen = append(seen, n.Text) })
	require.Equal(t, []string{"root", "a", "b", "c"}, seen)

	found := Find(root, func(n *Node) bool { return n.Text == "c" })
	require.NotNil(t, found)
}

func TestConvertXCUIElement(t *testing.T) {
	x := &xcuiElement{
		Type: "XCUIElementTypeButton", Label: "Submit", Enabled: "true",
		X: "10", Y: "20", Width: "100", Height: "40",
	}
	n := convertXCUIElement(x)
	require.Equal(t, "Submit", n.ContentDesc)
	require.True(t, n.Clickable)
	require.True(t, n.Enabled)
	require.Equal(t, "[10,20][110,60]", n.Bounds)
}
