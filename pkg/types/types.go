// Package types defines the wire types shared by the HTTP API layer and
// the model service.
package types

import "encoding/json"

// TensorPayload is one named input tensor in a run request. Data is the
// flat element array in row-major order; Shape gives its dimensions.
type TensorPayload struct {
	Type  string          `json:"type"`
	Shape []int64         `json:"shape"`
	Data  json.RawMessage `json:"data"`
}

// RunRequest asks the service to compute outputs. An empty Outputs list
// requests every declared output.
type RunRequest struct {
	Outputs []string                 `json:"outputs,omitempty"`
	Inputs  map[string]TensorPayload `json:"inputs"`
	Tag     string                   `json:"tag,omitempty"`
}

// TensorResult is one computed output tensor.
type TensorResult struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Shape []int64 `json:"shape"`
	Data  any     `json:"data"`
}

// RunResponse carries computed outputs in request order.
type RunResponse struct {
	Outputs []TensorResult `json:"outputs"`
}

// NodeDesc describes one model input or output.
type NodeDesc struct {
	Name        string  `json:"name"`
	Shape       []int64 `json:"shape"`
	ElementType string  `json:"element_type"`
}

// ModelMeta is the model-level metadata record.
type ModelMeta struct {
	ProducerName string            `json:"producer_name"`
	GraphName    string            `json:"graph_name"`
	Domain       string            `json:"domain"`
	Description  string            `json:"description"`
	Version      int64             `json:"version"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// ModelResponse describes the loaded model.
type ModelResponse struct {
	Inputs    []NodeDesc `json:"inputs"`
	Outputs   []NodeDesc `json:"outputs"`
	Metadata  *ModelMeta `json:"metadata"`
	Providers []string   `json:"providers"`
}

// ProvidersResponse reports the provider binding in effect and what the
// runtime build offers.
type ProvidersResponse struct {
	Active    []string `json:"active"`
	Available []string `json:"available"`
}

// SetProvidersRequest rebinds the session to a provider preference.
type SetProvidersRequest struct {
	Providers []string `json:"providers"`
}

// ProfilingResponse returns the profile artifact path.
type ProfilingResponse struct {
	Path string `json:"path"`
}
