package loader

// SetBuilderOption is a functional option for configuring a Set via NewSet.
type SetBuilderOption func(*Set)

// WithTextureLoader replaces the texture loader.
//
// Parameters:
//   - fn: the loader function
//
// Returns:
//   - SetBuilderOption: a function that applies the loader to a Set
func WithTextureLoader(fn func(path string) (*TextureData, error)) SetBuilderOption {
	return func(s *Set) {
		s.Texture = fn
	}
}

// WithShaderLoader replaces the shader loader.
//
// Parameters:
//   - fn: the loader function
//
// Returns:
//   - SetBuilderOption: a function that applies the loader to a Set
func WithShaderLoader(fn func(path string) (*ShaderData, error)) SetBuilderOption {
	return func(s *Set) {
		s.Shader = fn
	}
}

// WithMaterialLoader replaces the material loader.
//
// Parameters:
//   - fn: the loader function
//
// Returns:
//   - SetBuilderOption: a function that applies the loader to a Set
func WithMaterialLoader(fn func(path string) (*MaterialData, error)) SetBuilderOption {
	return func(s *Set) {
		s.Material = fn
	}
}

// WithModelLoader replaces the model loader.
//
// Parameters:
//   - fn: the loader function
//
// Returns:
//   - SetBuilderOption: a function that applies the loader to a Set
func WithModelLoader(fn func(path string) (*ModelData, error)) SetBuilderOption {
	return func(s *Set) {
		s.Model = fn
	}
}
