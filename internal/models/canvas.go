package models

// Canvas node types as written in .canvas files.
const (
	NodeTypeText  = "text"
	NodeTypeFile  = "file"
	NodeTypeLink  = "link"
	NodeTypeGroup = "group"
)

// CanvasDocument is the on-disk JSON Canvas layout.
type CanvasDocument struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Geometry is a node's position and size in canvas coordinates.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Node is a raw canvas node. Exactly one of Text or File is meaningful for the
// node shapes this system handles; other shapes pass through untouched.
type Node struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	File    string `json:"file,omitempty"`
	Subpath string `json:"subpath,omitempty"`
	URL     string `json:"url,omitempty"`
	Label   string `json:"label,omitempty"`
	Color   string `json:"color,omitempty"`
	Geometry
}

// Edge connects two nodes.
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	FromSide string `json:"fromSide,omitempty"`
	ToNode   string `json:"toNode"`
	ToSide   string `json:"toSide,omitempty"`
	Label    string `json:"label,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Selected is a classified single selection: either a FileNode or a TextNode.
type Selected interface {
	// NodeID is the canvas node identifier, possibly empty for file nodes.
	NodeID() string
	// Identity is the stable key used to detect a new selection.
	Identity() string
	selected()
}

// FileNode references a vault document.
type FileNode struct {
	ID   string
	Path string
	Geometry
}

func (n FileNode) NodeID() string { return n.ID }

func (n FileNode) Identity() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Path
}

func (FileNode) selected() {}

// TextNode holds free text edited through a temporary document.
type TextNode struct {
	ID   string
	Text string
	Geometry
}

func (n TextNode) NodeID() string   { return n.ID }
func (n TextNode) Identity() string { return n.ID }
func (TextNode) selected()          {}
