package nodestore

import "errors"

// Error categories. Call sites wrap causes with both the sentinel and the
// original error, so errors.Is matches either. A missing row is never an
// error; lookups report absence with a nil node.
var (
	// ErrEncode marks a value that could not be converted to its wire form,
	// typically a geometry the codec rejects. Fatal to the current call.
	ErrEncode = errors.New("nodestore: encode")

	// ErrDecode marks a stored row that could not be converted back into a
	// node: unscannable columns or unparseable geometry bytes.
	ErrDecode = errors.New("nodestore: decode")

	// ErrStore marks a failure of the underlying session, statement or copy
	// stream. The cause is always preserved; nothing is retried or logged
	// here.
	ErrStore = errors.New("nodestore: storage")
)
