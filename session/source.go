package session

// ModelSource identifies where a session's model comes from. It is a
// closed set of variants: FileSource, BytesSource and the deprecated
// PrebuiltSource. The source is immutable once handed to a session and is
// re-read on every provider rebind.
type ModelSource interface {
	isModelSource()
}

// FileSource loads the model from an ONNX file on disk.
type FileSource struct {
	Path string
}

// BytesSource loads the model from a serialized ONNX byte string.
type BytesSource struct {
	Data []byte
}

// PrebuiltSource adopts an already-constructed native session object
// without re-initializing it.
//
// Deprecated: historical escape hatch, slated for removal. It bypasses the
// engine's load pipeline; do not build new code on it.
type PrebuiltSource struct {
	Raw uintptr
}

func (FileSource) isModelSource()     {}
func (BytesSource) isModelSource()    {}
func (PrebuiltSource) isModelSource() {}
