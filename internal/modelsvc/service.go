// Package modelsvc exposes one loaded inference session as a service:
// it serializes provider rebinds against concurrent runs, converts wire
// payloads to native tensors and back, and reports model metadata.
package modelsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/onnxgo/ortserve/ort"
	"github.com/onnxgo/ortserve/pkg/types"
	"github.com/onnxgo/ortserve/session"
)

// Service wraps a session for concurrent HTTP use. The session facade
// itself does no locking, so the service holds the lock: runs and
// metadata reads share it, provider rebinds take it exclusively.
type Service struct {
	mu     sync.RWMutex
	sess   *session.Session
	engine session.Engine
	log    zerolog.Logger
}

func New(engine session.Engine, sess *session.Session, log zerolog.Logger) *Service {
	return &Service{
		sess:   sess,
		engine: engine,
		log:    log,
	}
}

// Ready reports whether the session is loaded. A failed rebind leaves the
// service permanently not ready.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.Providers() != nil
}

func (s *Service) Model() (types.ModelResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sess.Providers() == nil {
		return types.ModelResponse{}, errors.Wrap(session.ErrNotLoaded, "model")
	}
	return types.ModelResponse{
		Inputs:    nodeDescs(s.sess.Inputs()),
		Outputs:   nodeDescs(s.sess.Outputs()),
		Metadata:  modelMeta(s.sess.ModelMetadata()),
		Providers: s.sess.Providers(),
	}, nil
}

func (s *Service) Providers() (types.ProvidersResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	available, err := s.engine.AvailableProviders()
	if err != nil {
		return types.ProvidersResponse{}, err
	}
	return types.ProvidersResponse{
		Active:    s.sess.Providers(),
		Available: available,
	}, nil
}

// SetProviders rebinds the session. Exclusive: no run proceeds while the
// session is torn down and rebuilt.
func (s *Service) SetProviders(providers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info().Strs("providers", providers).Msg("rebinding execution providers")
	if err := s.sess.SetProviders(providers); err != nil {
		s.log.Error().Err(err).Msg("provider rebind failed")
		return err
	}
	s.log.Info().Strs("providers", s.sess.Providers()).Msg("providers rebound")
	return nil
}

// Run decodes the wire payload into native tensors, computes the requested
// outputs and encodes the results. Input and output tensors are released
// before return.
func (s *Service) Run(ctx context.Context, req types.RunRequest) (types.RunResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.RunResponse{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	feed := make(map[string]any, len(req.Inputs))
	defer func() {
		for _, v := range feed {
			if t, ok := v.(interface{ Destroy() error }); ok {
				_ = t.Destroy()
			}
		}
	}()
	for name, payload := range req.Inputs {
		tensor, err := buildTensor(payload)
		if err != nil {
			return types.RunResponse{}, errors.Wrapf(err, "input %q", name)
		}
		feed[name] = tensor
	}

	var runOpts *ort.RunOptions
	if req.Tag != "" {
		runOpts = &ort.RunOptions{Tag: req.Tag}
	}

	results, err := s.sess.Run(req.Outputs, feed, runOpts)
	if err != nil {
		return types.RunResponse{}, err
	}

	names := req.Outputs
	if len(names) == 0 {
		for _, out := range s.sess.Outputs() {
			names = append(names, out.Name)
		}
	}

	resp := types.RunResponse{Outputs: make([]types.TensorResult, 0, len(results))}
	for i, result := range results {
		tensor, ok := result.(*ort.OutputTensor)
		if !ok {
			return types.RunResponse{}, errors.Errorf("unexpected result type %T", result)
		}
		encoded, err := encodeTensor(names[i], tensor)
		_ = tensor.Destroy()
		if err != nil {
			return types.RunResponse{}, err
		}
		resp.Outputs = append(resp.Outputs, encoded)
	}
	return resp, nil
}

func (s *Service) EndProfiling() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.EndProfiling()
}

// Close releases the session.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Close()
}

// buildTensor converts one wire payload into a native tensor.
func buildTensor(payload types.TensorPayload) (any, error) {
	elementType, err := ort.TensorElementDataTypeFromString(payload.Type)
	if err != nil {
		return nil, err
	}
	shape := ort.NewShape(payload.Shape...)

	switch elementType {
	case ort.TensorElementDataTypeFloat:
		data, err := decodeElements[float32](payload, shape)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	case ort.TensorElementDataTypeDouble:
		data, err := decodeElements[float64](payload, shape)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	case ort.TensorElementDataTypeInt32:
		data, err := decodeElements[int32](payload, shape)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	case ort.TensorElementDataTypeInt64:
		data, err := decodeElements[int64](payload, shape)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	default:
		return nil, errors.Errorf("element type %q is not supported over the wire", payload.Type)
	}
}

// decodeElements parses the flat data array and checks it against the
// declared shape before any native allocation happens.
func decodeElements[T any](payload types.TensorPayload, shape ort.Shape) ([]T, error) {
	var data []T
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, errors.Wrapf(err, "decode %s data", payload.Type)
	}
	want, err := ort.ShapeElementCount(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, errors.Errorf("shape %v requires %d elements, data contains %d", []int64(shape), want, len(data))
	}
	return data, nil
}

// encodeTensor reads a native output tensor back into the wire form.
func encodeTensor(name string, tensor *ort.OutputTensor) (types.TensorResult, error) {
	shape, elementType, err := tensor.Info()
	if err != nil {
		return types.TensorResult{}, err
	}

	result := types.TensorResult{
		Name:  name,
		Type:  elementType.String(),
		Shape: shape,
	}
	switch elementType {
	case ort.TensorElementDataTypeFloat:
		result.Data, err = tensor.Float32s()
	case ort.TensorElementDataTypeDouble:
		result.Data, err = tensor.Float64s()
	case ort.TensorElementDataTypeInt32:
		result.Data, err = tensor.Int32s()
	case ort.TensorElementDataTypeInt64:
		result.Data, err = tensor.Int64s()
	default:
		err = errors.Errorf("element type %q is not supported over the wire", elementType)
	}
	if err != nil {
		return types.TensorResult{}, err
	}
	return result, nil
}

func nodeDescs(infos []session.NodeInfo) []types.NodeDesc {
	descs := make([]types.NodeDesc, len(infos))
	for i, info := range infos {
		descs[i] = types.NodeDesc{
			Name:        info.Name,
			Shape:       info.Shape,
			ElementType: info.ElementType,
		}
	}
	return descs
}

func modelMeta(meta *session.ModelMetadata) *types.ModelMeta {
	if meta == nil {
		return nil
	}
	return &types.ModelMeta{
		ProducerName: meta.ProducerName,
		GraphName:    meta.GraphName,
		Domain:       meta.Domain,
		Description:  meta.Description,
		Version:      meta.Version,
		Custom:       meta.Custom,
	}
}
