package event

import "strconv"

// Code identifies the kind of an event. Subscribers register per code.
type Code uint16

const (
	// CodeNone is never published; it is the zero value.
	CodeNone Code = iota

	// CodeAppQuit asks the application to shut down.
	CodeAppQuit

	// CodeKeyPressed carries U32s{key, scancode, mods, 0}.
	CodeKeyPressed

	// CodeKeyReleased carries U32s{key, scancode, mods, 0}.
	CodeKeyReleased

	// CodeMouseButton carries I32s{button, action, x, y}.
	CodeMouseButton

	// CodeMouseMoved carries I32s{x, y, 0, 0}. Producers are expected to throttle it.
	CodeMouseMoved

	// CodeMouseWheel carries F32s{dx, dy, 0, 0}.
	CodeMouseWheel

	// CodeResized carries U32s{width, height, 0, 0}.
	CodeResized

	// CodeAssetLoaded is published once per newly registered asset.
	// It carries U32s{handle, kind, 0, 0}.
	CodeAssetLoaded

	// CodeAssetFileModified is published by the file watcher when an asset's source file changes.
	// It carries U32s{handle, kind, 0, 0}.
	CodeAssetFileModified

	// CodeAssetReloaded is published after an asset was reloaded from disk.
	// It carries U32s{handle, kind, 0, 0}.
	CodeAssetReloaded

	// CodeAssetChanged signals that an asset's contents changed, either by reload or by an
	// in-memory edit. Handle-scoped callbacks are run when it is dispatched.
	// It carries U32s{handle, kind, 0, 0}.
	CodeAssetChanged

	// CodeNodeAdded carries I32s{node, parent, 0, 0}.
	CodeNodeAdded

	// CodeNodeMoved carries I32s{node, oldParent, newParent, 0}.
	CodeNodeMoved

	// CodeUser is the first code available to applications.
	CodeUser Code = 0x100
)

var codeNames = map[Code]string{
	CodeNone:              "None",
	CodeAppQuit:           "AppQuit",
	CodeKeyPressed:        "KeyPressed",
	CodeKeyReleased:       "KeyReleased",
	CodeMouseButton:       "MouseButton",
	CodeMouseMoved:        "MouseMoved",
	CodeMouseWheel:        "MouseWheel",
	CodeResized:           "Resized",
	CodeAssetLoaded:       "AssetLoaded",
	CodeAssetFileModified: "AssetFileModified",
	CodeAssetReloaded:     "AssetReloaded",
	CodeAssetChanged:      "AssetChanged",
	CodeNodeAdded:         "NodeAdded",
	CodeNodeMoved:         "NodeMoved",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c >= CodeUser {
		return "User+" + strconv.Itoa(int(c-CodeUser))
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}
