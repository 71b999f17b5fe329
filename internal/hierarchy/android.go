package hierarchy

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// xmlNode mirrors the uiautomator dump XML element shape; tags are
// generic (`node`) with attributes carrying the semantics.
type xmlNode struct {
	XMLName     xml.Name  `xml:"node"`
	Text        string    `xml:"text,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Enabled     string    `xml:"enabled,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Class       string    `xml:"class,attr"`
	Children    []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// AndroidDumper dumps the Android UI tree via uiautomator.
type AndroidDumper struct {
	discover *toolpath.Discovery
	run      *runner.Runner
}

// NewAndroidDumper constructs an AndroidDumper.
func NewAndroidDumper(discover *toolpath.Discovery, run *runner.Runner) *AndroidDumper {
	return &AndroidDumper{discover: discover, run: run}
}

const dumpRemotePath = "/sdcard/window_dump.xml"

// Dump performs `uiautomator dump && cat ... && rm ...` in one shell
// invocation (§4.5), falling back to `pull` if the inline read fails.
func (d *AndroidDumper) Dump(ctx context.Context, deviceID string) (*Tree, error) {
	adb, err := d.discover.Locate(ctx, "adb")
	if err != nil {
		return nil, err
	}

	shellCmd := fmt.Sprintf("uiautomator dump %s && cat %s && rm %s", dumpRemotePath, dumpRemotePath, dumpRemotePath)
	res, err := d.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", shellCmd},
		Timeout: 10 * time.Second,
	})

	xmlContent := res.Stdout
	if err != nil || !strings.Contains(xmlContent, "<?xml") {
		xmlContent, err = d.pullFallback(ctx, adb.Path, deviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to dump UI hierarchy: %w", err)
		}
	}

	xmlContent = cleanXML(xmlContent)
	root, parseErr := parseAndroidXML(xmlContent)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse UI XML: %w", parseErr)
	}
	return &Tree{Root: Collapse(root), RawXML: xmlContent}, nil
}

// pullFallback re-dumps the hierarchy and retrieves it via `adb pull`
// into a local temp file instead of `shell cat`, avoiding the
// shell-buffer truncation that the inline read can hit on a large tree.
func (d *AndroidDumper) pullFallback(ctx context.Context, adbPath, deviceID string) (string, error) {
	_, err := d.run.Execute(ctx, runner.Command{
		Path:    adbPath,
		Args:    []string{"-s", deviceID, "shell", "uiautomator", "dump", dumpRemotePath},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return "", err
	}

	local, err := os.CreateTemp("", "window_dump-*.xml")
	if err != nil {
		return "", err
	}
	localPath := local.Name()
	local.Close()
	defer os.Remove(localPath)

	_, err = d.run.Execute(ctx, runner.Command{
		Path:    adbPath,
		Args:    []string{"-s", deviceID, "pull", dumpRemotePath, localPath},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	_, _ = d.run.Execute(ctx, runner.Command{
		Path:    adbPath,
		Args:    []string{"-s", deviceID, "shell", "rm", dumpRemotePath},
		Timeout: 5 * time.Second,
	})
	return string(data), nil
}

// cleanXML trims adb shell header/footer noise around the XML payload.
func cleanXML(content string) string {
	start := strings.Index(content, "<?xml")
	if start != -1 {
		content = content[start:]
	}
	end := strings.LastIndex(content, ">")
	if end != -1 && end < len(content)-1 {
		content = content[:end+1]
	}
	return content
}

func parseAndroidXML(content string) (*Node, error) {
	var h xmlHierarchy
	if err := xml.Unmarshal([]byte(content), &h); err != nil {
		return nil, err
	}
	if len(h.Nodes) == 0 {
		return nil, fmt.Errorf("empty hierarchy")
	}
	if len(h.Nodes) == 1 {
		return convertXMLNode(&h.Nodes[0]), nil
	}
	root := &Node{Class: "android.view.View", Text: "Root Container"}
	for i := range h.Nodes {
		root.Children = append(root.Children, convertXMLNode(&h.Nodes[i]))
	}
	return root, nil
}

func convertXMLNode(x *xmlNode) *Node {
	n := &Node{
		Text:        x.Text,
		ContentDesc: x.ContentDesc,
		ResourceID:  x.ResourceID,
		Bounds:      x.Bounds,
		Enabled:     x.Enabled == "true",
		Clickable:   x.Clickable == "true",
		Class:       x.Class,
	}
	for i := range x.Children {
		n.Children = append(n.Children, convertXMLNode(&x.Children[i]))
	}
	return n
}
