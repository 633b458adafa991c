package session

// NodeInfo describes one model input or output as reported by the engine
// at load time: graph name, tensor shape (symbolic dimensions as -1) and
// element type name.
type NodeInfo struct {
	Name        string  `json:"name"`
	Shape       []int64 `json:"shape"`
	ElementType string  `json:"element_type"`
}

// ModelMetadata is the engine's descriptive record for a loaded model.
type ModelMetadata struct {
	ProducerName string            `json:"producer_name"`
	GraphName    string            `json:"graph_name"`
	Domain       string            `json:"domain"`
	Description  string            `json:"description"`
	Version      int64             `json:"version"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// Engine is the capability contract the facade requires from a native
// inference engine. Session configuration and run values are opaque to the
// facade and passed through unmodified; their concrete types are an
// agreement between the caller and the engine implementation.
type Engine interface {
	// NewHandle creates an unbound session handle using the given opaque
	// configuration (nil means engine defaults).
	NewHandle(config any) (Handle, error)

	// AvailableProviders reports the execution providers the engine can
	// currently offer. Availability is process-wide state; the facade
	// queries it fresh on every rebind.
	AvailableProviders() ([]string, error)
}

// Handle is one live native session. It is bound to a model by exactly one
// LoadFrom* call and released with Destroy. The metadata accessors return
// views that alias engine-internal memory and must not be used after the
// handle is destroyed.
type Handle interface {
	LoadFromFile(path string, providers []string) error
	LoadFromBytes(data []byte, providers []string) error

	// LoadPrebuilt adopts an existing native session object.
	//
	// Deprecated: escape hatch mirroring PrebuiltSource; slated for removal.
	LoadPrebuilt(raw uintptr, providers []string) error

	Inputs() []NodeInfo
	Outputs() []NodeInfo
	ModelMetadata() ModelMetadata

	// Providers returns the resolved provider list in effect for this
	// handle; the engine may reorder or extend the requested list.
	Providers() []string

	// Run computes the named outputs from the input feed. Values are
	// opaque engine payloads; outputs come back in outputNames order.
	Run(outputNames []string, feed map[string]any, runOptions any) ([]any, error)

	// EndProfiling stops native profiling and returns the profile path.
	EndProfiling() (string, error)

	Destroy() error
}
