package imf

// =============================================================================
// Constants
// =============================================================================

// Void is the parent value of nodes without a resolved tree parent.
const Void = "void"

// CreatedBy marks every node and edge the converter emits.
const CreatedBy = "system"

// NodeType is the only node type the diagram editor knows.
const NodeType = "block"

// Default node geometry.
const (
	DefaultNodeWidth  = 110
	DefaultNodeHeight = 66
)

// Aspect distinguishes product (component) nodes from function nodes.
type Aspect string

// Node aspects.
const (
	AspectProduct  Aspect = "product"
	AspectFunction Aspect = "function"
)

// EdgeType is the relation an edge materializes.
type EdgeType string

// Edge types.
const (
	EdgePart      EdgeType = "part"      // child → parent
	EdgeFulfilled EdgeType = "fulfilled" // product → function
)

// Direction is the side of a node an edge attaches to.
type Direction string

// Handle directions.
const (
	Left   Direction = "left"
	Right  Direction = "right"
	Top    Direction = "top"
	Bottom Direction = "bottom"
)

// =============================================================================
// Document
// =============================================================================

// Document is the IMF graph document.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Position is a planar coordinate. Y grows downward.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ref references another node by id.
type Ref struct {
	ID string `json:"id"`
}

// Node is a positioned block.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Selected bool     `json:"selected"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeData is the editor payload of a block.
type NodeData struct {
	Aspect           Aspect  `json:"aspect"`
	Label            string  `json:"label"`
	CustomName       string  `json:"customName"`
	Parent           string  `json:"parent"`
	DirectPartOf     string  `json:"directPartOf"`
	Children         []Ref   `json:"children"`
	DirectParts      []Ref   `json:"directParts"`
	FulfilledBy      []Ref   `json:"fulfilledBy"`
	Fulfills         []Ref   `json:"fulfills"`
	ConnectedTo      []Ref   `json:"connectedTo"`
	ConnectedBy      []Ref   `json:"connectedBy"`
	Terminals        []Ref   `json:"terminals"`
	CustomAttributes []any   `json:"customAttributes"`
	CreatedAt        int64   `json:"createdAt"`
	UpdatedAt        int64   `json:"updatedAt"`
	CreatedBy        string  `json:"createdBy"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
}

// Edge connects two blocks through named handles.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle string   `json:"sourceHandle"`
	TargetHandle string   `json:"targetHandle"`
	Type         EdgeType `json:"type"`
	Selected     bool     `json:"selected"`
	Data         EdgeData `json:"data"`
}

// EdgeData is the editor payload of an edge.
type EdgeData struct {
	ID             string `json:"id"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
	LockConnection bool   `json:"lockConnection"`
	Label          string `json:"label"`
	CreatedBy      string `json:"createdBy"`
}

// NewNodeData returns node data with every list initialized, so the
// document never serializes null where the editor expects an array.
func NewNodeData(aspect Aspect) NodeData {
	return NodeData{
		Aspect:           aspect,
		Children:         []Ref{},
		DirectParts:      []Ref{},
		FulfilledBy:      []Ref{},
		Fulfills:         []Ref{},
		ConnectedTo:      []Ref{},
		ConnectedBy:      []Ref{},
		Terminals:        []Ref{},
		CustomAttributes: []any{},
		CreatedBy:        CreatedBy,
	}
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// EdgesOfType returns the edges of kind t in document order.
func (d *Document) EdgesOfType(t EdgeType) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// CountAspect returns how many nodes have the given aspect.
func (d *Document) CountAspect(a Aspect) int {
	n := 0
	for _, node := range d.Nodes {
		if node.Data.Aspect == a {
			n++
		}
	}
	return n
}
