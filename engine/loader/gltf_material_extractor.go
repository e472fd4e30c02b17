package loader

import (
	"encoding/json"
	"fmt"
	"strings"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser

	// decoded embedded images, keyed by image index
	images map[int]*TextureData
}

// gltfMaterialExtractor converts glTF materials into MaterialData.
type gltfMaterialExtractor interface {
	// ExtractMaterial extracts a material by index. Embedded images are decoded once and shared
	// between materials that reference them.
	//
	// Parameters:
	//   - materialIndex: the index of the material
	//
	// Returns:
	//   - MaterialData: the extracted material
	//   - error: error if extraction fails
	ExtractMaterial(materialIndex int) (MaterialData, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

func newGLTFMaterialExtractor(parser gltfParser) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{
		parser: parser,
		images: make(map[int]*TextureData),
	}
}

type gltfMaterialExtras struct {
	Material string `json:"material"`
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (MaterialData, error) {
	doc := e.parser.Document()
	if doc == nil {
		return MaterialData{}, fmt.Errorf("no document loaded")
	}
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return MaterialData{}, fmt.Errorf("material index %d out of range", materialIndex)
	}

	mat := &doc.Materials[materialIndex]
	result := MaterialData{
		Name:      mat.Name,
		BaseDir:   e.parser.BaseDir(),
		BaseColor: [4]float32{1, 1, 1, 1},
		Metallic:  1,
		Roughness: 1,
	}
	if result.Name == "" {
		result.Name = fmt.Sprintf("material_%d", materialIndex)
	}

	// Non-object extras are ignored.
	if len(mat.Extras) > 0 {
		var extras gltfMaterialExtras
		if json.Unmarshal(mat.Extras, &extras) == nil && extras.Material != "" {
			result.Ref = extras.Material
			return result, nil
		}
	}

	var infos []*gltfTextureInfo
	if pbr := mat.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			result.BaseColor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			result.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			result.Roughness = *pbr.RoughnessFactor
		}
		infos = append(infos, pbr.BaseColorTexture, pbr.MetallicRoughnessTexture)
	}
	infos = append(infos, mat.NormalTexture)

	for _, info := range infos {
		if info == nil {
			continue
		}
		ref, ok, err := e.textureRef(info.Index)
		if err != nil {
			return MaterialData{}, fmt.Errorf("material %q: %w", result.Name, err)
		}
		if ok {
			result.Textures = append(result.Textures, ref)
		}
	}

	return result, nil
}

// textureRef resolves a glTF texture to either an external file path or decoded embedded pixels.
func (e *gltfMaterialExtractorImpl) textureRef(textureIndex int) (TextureRef, bool, error) {
	doc := e.parser.Document()
	if textureIndex < 0 || textureIndex >= len(doc.Textures) {
		return TextureRef{}, false, fmt.Errorf("texture index %d out of range", textureIndex)
	}

	tex := &doc.Textures[textureIndex]
	if tex.Source == nil {
		return TextureRef{}, false, nil
	}
	imageIndex := *tex.Source
	if imageIndex < 0 || imageIndex >= len(doc.Images) {
		return TextureRef{}, false, fmt.Errorf("image index %d out of range", imageIndex)
	}

	img := &doc.Images[imageIndex]
	if img.BufferView == nil && img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
		return TextureRef{Path: img.URI}, true, nil
	}

	key := fmt.Sprintf("texture/%d", imageIndex)
	if td, ok := e.images[imageIndex]; ok {
		return TextureRef{Key: key, Data: td}, true, nil
	}

	var raw []byte
	var err error
	switch {
	case img.BufferView != nil:
		raw, err = e.parser.ReadBufferView(*img.BufferView)
	case img.URI != "":
		raw, _, err = decodeDataURI(img.URI)
	default:
		return TextureRef{}, false, nil
	}
	if err != nil {
		return TextureRef{}, false, fmt.Errorf("image %d: %w", imageIndex, err)
	}

	td, err := DecodeTexture(raw)
	if err != nil {
		return TextureRef{}, false, fmt.Errorf("image %d: %w", imageIndex, err)
	}
	td.Name = img.Name
	if td.Name == "" {
		td.Name = key
	}
	e.images[imageIndex] = td
	return TextureRef{Key: key, Data: td}, true, nil
}
