package asset

import "errors"

var (
	// ErrNotFound is returned when a path cannot be resolved under the asset root.
	ErrNotFound = errors.New("asset: not found")

	// ErrInvalidHandle is returned for the nil handle, a handle from another session, or an
	// index this registry never issued.
	ErrInvalidHandle = errors.New("asset: invalid handle")

	// ErrKindMismatch is returned when a typed lookup or Create gets the wrong variant.
	ErrKindMismatch = errors.New("asset: kind mismatch")

	// ErrUnsupportedKind is returned when no loader exists for the requested kind.
	ErrUnsupportedKind = errors.New("asset: unsupported kind")

	// ErrReloadUnsupported is returned by Reload for materials, models, meshes and created assets.
	ErrReloadUnsupported = errors.New("asset: reload not supported for this asset")

	// ErrUnknownCallback is returned by DetachCallback for an id that is not attached.
	ErrUnknownCallback = errors.New("asset: unknown callback")

	// ErrFull is returned once MaxAssets assets have been registered.
	ErrFull = errors.New("asset: registry full")

	// ErrClosed is returned by operations on a closed registry.
	ErrClosed = errors.New("asset: registry closed")
)
