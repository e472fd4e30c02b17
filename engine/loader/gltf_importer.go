package loader

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	parser    gltfParser
	meshes    gltfMeshExtractor
	materials gltfMaterialExtractor
}

// gltfImporter turns a parsed document into a ModelData hierarchy.
type gltfImporter interface {
	// Import walks the default scene and emits one ModelNode per glTF node under a synthetic
	// root. A node whose mesh has several primitives gets one child node per extra primitive.
	//
	// Parameters:
	//   - fallbackName: the model name used when the scene is unnamed
	//
	// Returns:
	//   - *ModelData: the imported model
	//   - error: error if extraction fails
	Import(fallbackName string) (*ModelData, error)
}

var _ gltfImporter = &gltfImporterImpl{}

func newGLTFImporter(parser gltfParser) gltfImporter {
	return &gltfImporterImpl{
		parser:    parser,
		meshes:    newGLTFMeshExtractor(parser),
		materials: newGLTFMaterialExtractor(parser),
	}
}

func (imp *gltfImporterImpl) Import(fallbackName string) (*ModelData, error) {
	doc := imp.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document after parsing")
	}

	md := &ModelData{Name: fallbackName}
	for i := range doc.Materials {
		mat, err := imp.materials.ExtractMaterial(i)
		if err != nil {
			return nil, fmt.Errorf("material extraction failed: %w", err)
		}
		md.Materials = append(md.Materials, mat)
	}

	roots := imp.sceneRoots()
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) && doc.Scenes[*doc.Scene].Name != "" {
		md.Name = doc.Scenes[*doc.Scene].Name
	}

	md.Nodes = append(md.Nodes, ModelNode{
		Name:     md.Name,
		Parent:   -1,
		Local:    mgl32.Ident4(),
		Material: -1,
	})

	visited := make([]bool, len(doc.Nodes))
	for _, r := range roots {
		if err := imp.importNode(md, r, 0, visited); err != nil {
			return nil, err
		}
	}
	return md, nil
}

// sceneRoots returns the root nodes of the default scene, or every parentless node when the
// document declares no scene.
func (imp *gltfImporterImpl) sceneRoots() []int {
	doc := imp.parser.Document()
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			s = *doc.Scene
		}
		return doc.Scenes[s].Nodes
	}

	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i, p := range hasParent {
		if !p {
			roots = append(roots, i)
		}
	}
	return roots
}

func (imp *gltfImporterImpl) importNode(md *ModelData, index, parent int, visited []bool) error {
	doc := imp.parser.Document()
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if visited[index] {
		return fmt.Errorf("node %d appears more than once in the hierarchy", index)
	}
	visited[index] = true

	n := &doc.Nodes[index]
	self := len(md.Nodes)
	md.Nodes = append(md.Nodes, ModelNode{
		Name:     n.Name,
		Parent:   parent,
		Local:    gltfNodeMatrix(n),
		Material: -1,
	})
	if md.Nodes[self].Name == "" {
		md.Nodes[self].Name = fmt.Sprintf("node_%d", index)
	}

	if n.Mesh != nil {
		meshes, materials, err := imp.meshes.ExtractMesh(*n.Mesh)
		if err != nil {
			return fmt.Errorf("node %d: %w", index, err)
		}
		for i, mesh := range meshes {
			if materials[i] >= len(md.Materials) {
				return fmt.Errorf("node %d: material index %d out of range", index, materials[i])
			}
			if i == 0 {
				md.Nodes[self].Mesh = mesh
				md.Nodes[self].Material = materials[i]
				continue
			}
			md.Nodes = append(md.Nodes, ModelNode{
				Name:     mesh.Name,
				Parent:   self,
				Local:    mgl32.Ident4(),
				Mesh:     mesh,
				Material: materials[i],
			})
		}
	}

	for _, c := range n.Children {
		if err := imp.importNode(md, c, self, visited); err != nil {
			return err
		}
	}
	return nil
}

// gltfNodeMatrix returns the node's local transform, T * R * S when no matrix is given.
func gltfNodeMatrix(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}

	m := mgl32.Ident4()
	if n.Translation != nil {
		t := n.Translation
		m = mgl32.Translate3D(t[0], t[1], t[2])
	}
	if n.Rotation != nil {
		r := n.Rotation
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if n.Scale != nil {
		s := n.Scale
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}
