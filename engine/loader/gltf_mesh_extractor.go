package loader

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor converts glTF mesh primitives into MeshData.
type gltfMeshExtractor interface {
	// ExtractMesh extracts every primitive of a mesh.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh
	//
	// Returns:
	//   - []*MeshData: one entry per primitive
	//   - []int: the material index of each primitive, -1 when unset
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int) ([]*MeshData, []int, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) ([]*MeshData, []int, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, fmt.Errorf("no document loaded")
	}
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}

	mesh := &doc.Meshes[meshIndex]
	meshes := make([]*MeshData, 0, len(mesh.Primitives))
	materials := make([]int, 0, len(mesh.Primitives))

	for primIdx := range mesh.Primitives {
		prim := &mesh.Primitives[primIdx]
		md, err := e.extractPrimitive(prim)
		if err != nil {
			return nil, nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}

		md.Name = mesh.Name
		if md.Name == "" {
			md.Name = fmt.Sprintf("mesh_%d", meshIndex)
		}
		if primIdx > 0 {
			md.Name = fmt.Sprintf("%s_prim%d", md.Name, primIdx)
		}

		material := -1
		if prim.Material != nil {
			material = *prim.Material
		}
		meshes = append(meshes, md)
		materials = append(materials, material)
	}

	return meshes, materials, nil
}

func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltfPrimitive) (*MeshData, error) {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return nil, fmt.Errorf("unsupported primitive mode: %d (only triangles supported)", *prim.Mode)
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := e.parser.ReadFloats(posAccessor, gltfAccessorTypeVec3)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	vertexCount := len(positions) / 3
	vertices := make([]Vertex, vertexCount)
	for i := range vertices {
		vertices[i].Position = [3]float32{positions[i*3], positions[i*3+1], positions[i*3+2]}
		vertices[i].Color = [4]float32{1, 1, 1, 1}
	}

	hasNormals := false
	if acc, ok := prim.Attributes["NORMAL"]; ok {
		normals, err := e.parser.ReadFloats(acc, gltfAccessorTypeVec3)
		if err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		for i := 0; i < vertexCount && i*3+2 < len(normals); i++ {
			vertices[i].Normal = [3]float32{normals[i*3], normals[i*3+1], normals[i*3+2]}
		}
		hasNormals = true
	}

	if acc, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, err := e.parser.ReadFloats(acc, gltfAccessorTypeVec2)
		if err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
		for i := 0; i < vertexCount && i*2+1 < len(uvs); i++ {
			vertices[i].TexCoord = [2]float32{uvs[i*2], uvs[i*2+1]}
		}
	}

	if acc, ok := prim.Attributes["COLOR_0"]; ok {
		colors, err := e.readColors(acc)
		if err != nil {
			return nil, fmt.Errorf("failed to read colors: %w", err)
		}
		for i := 0; i < vertexCount && i < len(colors); i++ {
			vertices[i].Color = colors[i]
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = e.parser.ReadIndices(*prim.Indices)
		if err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
	} else {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	if !hasNormals && len(indices) >= 3 {
		generateNormals(vertices, indices)
	}

	bmin, bmax := calculateBounds(vertices)
	return &MeshData{
		Vertices:  vertices,
		Indices:   indices,
		BoundsMin: bmin,
		BoundsMax: bmax,
	}, nil
}

// readColors accepts VEC3/VEC4 colors stored as floats or normalized unsigned integers.
func (e *gltfMeshExtractorImpl) readColors(accessorIndex int) ([][4]float32, error) {
	acc := &e.parser.Document().Accessors[accessorIndex]
	width := gltfAccessorTypeComponentCount(acc.Type)
	if width != 3 && width != 4 {
		return nil, fmt.Errorf("unsupported color type: %s", acc.Type)
	}

	var flat []float32
	switch acc.ComponentType {
	case gltfComponentTypeFloat:
		var err error
		if flat, err = e.parser.ReadFloats(accessorIndex, acc.Type); err != nil {
			return nil, err
		}
	case gltfComponentTypeUnsignedByte, gltfComponentTypeUnsignedShort:
		data, err := e.parser.ReadAccessorData(accessorIndex)
		if err != nil {
			return nil, err
		}
		size := gltfComponentTypeSize(acc.ComponentType)
		flat = make([]float32, len(data)/size)
		for i := range flat {
			if size == 1 {
				flat[i] = float32(data[i]) / 255
			} else {
				flat[i] = float32(uint16(data[i*2])|uint16(data[i*2+1])<<8) / 65535
			}
		}
	default:
		return nil, fmt.Errorf("unsupported color component type: %d", acc.ComponentType)
	}

	out := make([][4]float32, acc.Count)
	for i := range out {
		c := [4]float32{1, 1, 1, 1}
		copy(c[:width], flat[i*width:(i+1)*width])
		out[i] = c
	}
	return out, nil
}

func calculateBounds(vertices []Vertex) ([3]float32, [3]float32) {
	if len(vertices) == 0 {
		return [3]float32{}, [3]float32{}
	}

	bmin := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	bmax := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, v := range vertices {
		for j := range 3 {
			bmin[j] = min(bmin[j], v.Position[j])
			bmax[j] = max(bmax[j], v.Position[j])
		}
	}
	return bmin, bmax
}

// generateNormals accumulates area-weighted face normals onto each vertex and normalizes them.
// Degenerate vertices get +Y.
func generateNormals(vertices []Vertex, indices []uint32) {
	n := len(vertices)
	accum := make([]mgl32.Vec3, n)

	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		if int(i0) >= n || int(i1) >= n || int(i2) >= n {
			continue
		}

		p0 := mgl32.Vec3(vertices[i0].Position)
		edge1 := mgl32.Vec3(vertices[i1].Position).Sub(p0)
		edge2 := mgl32.Vec3(vertices[i2].Position).Sub(p0)
		face := edge1.Cross(edge2)

		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}

	for i := range n {
		if accum[i].Len() < 1e-6 {
			vertices[i].Normal = [3]float32{0, 1, 0}
			continue
		}
		vertices[i].Normal = accum[i].Normalize()
	}
}
