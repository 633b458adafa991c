package session

import (
	"github.com/onnxgo/ortserve/ort"
)

// NewORTEngine returns an Engine backed by the ONNX Runtime binding in the
// ort package. The runtime environment must already be initialized
// (ort.InitializeEnvironment or ort.InitializeEnvironmentWithBootstrap).
//
// Session configuration is expected as *ort.SessionConfig and run options
// as *ort.RunOptions; feed values must be ort tensors. Outputs come back as
// *ort.OutputTensor.
func NewORTEngine() Engine {
	return ortEngine{runtime: ort.NewRuntime()}
}

type ortEngine struct {
	runtime *ort.Runtime
}

func (e ortEngine) NewHandle(config any) (Handle, error) {
	h, err := e.runtime.NewHandle(config)
	if err != nil {
		return nil, err
	}
	return ortHandle{h: h}, nil
}

func (e ortEngine) AvailableProviders() ([]string, error) {
	return e.runtime.AvailableProviders()
}

// ortHandle adapts *ort.SessionHandle to the Handle contract, converting
// binding-level metadata structs to facade types at the boundary.
type ortHandle struct {
	h *ort.SessionHandle
}

func (h ortHandle) LoadFromFile(path string, providers []string) error {
	return h.h.LoadFromFile(path, providers)
}

func (h ortHandle) LoadFromBytes(data []byte, providers []string) error {
	return h.h.LoadFromBytes(data, providers)
}

func (h ortHandle) LoadPrebuilt(raw uintptr, providers []string) error {
	return h.h.LoadPrebuilt(raw, providers)
}

func (h ortHandle) Inputs() []NodeInfo {
	return convertNodeInfos(h.h.Inputs())
}

func (h ortHandle) Outputs() []NodeInfo {
	return convertNodeInfos(h.h.Outputs())
}

func (h ortHandle) ModelMetadata() ModelMetadata {
	m := h.h.ModelMetadata()
	return ModelMetadata{
		ProducerName: m.ProducerName,
		GraphName:    m.GraphName,
		Domain:       m.Domain,
		Description:  m.Description,
		Version:      m.Version,
		Custom:       m.Custom,
	}
}

func (h ortHandle) Providers() []string {
	return h.h.Providers()
}

func (h ortHandle) Run(outputNames []string, feed map[string]any, runOptions any) ([]any, error) {
	ortFeed := make(map[string]ort.Value, len(feed))
	for name, value := range feed {
		ortValue, ok := value.(ort.Value)
		if !ok {
			return nil, &ort.RuntimeError{
				Code:    ort.ErrorCodeInvalidArgument,
				Message: "input " + name + " is not an ort value",
			}
		}
		ortFeed[name] = ortValue
	}

	var opts *ort.RunOptions
	if runOptions != nil {
		typed, ok := runOptions.(*ort.RunOptions)
		if !ok {
			return nil, &ort.RuntimeError{
				Code:    ort.ErrorCodeInvalidArgument,
				Message: "run options are not *ort.RunOptions",
			}
		}
		opts = typed
	}

	values, err := h.h.Run(outputNames, ortFeed, opts)
	if err != nil {
		return nil, err
	}

	outputs := make([]any, len(values))
	for i, v := range values {
		outputs[i] = v
	}
	return outputs, nil
}

func (h ortHandle) EndProfiling() (string, error) {
	return h.h.EndProfiling()
}

func (h ortHandle) Destroy() error {
	return h.h.Destroy()
}

func convertNodeInfos(infos []ort.NodeInfo) []NodeInfo {
	if infos == nil {
		return nil
	}
	converted := make([]NodeInfo, len(infos))
	for i, info := range infos {
		converted[i] = NodeInfo{
			Name:        info.Name,
			Shape:       append([]int64(nil), info.Shape...),
			ElementType: info.ElementType.String(),
		}
	}
	return converted
}
