package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onnxgo/ortserve/internal/modelsvc"
	"github.com/onnxgo/ortserve/ort"
	"github.com/onnxgo/ortserve/pkg/types"
)

func newRunCmd() *cobra.Command {
	var (
		requestFile string
		outputs     []string
		zeroInputs  []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one inference and print the outputs as JSON",
		Long: `Run one inference and print the outputs as JSON.

The input feed comes from a request file (the same JSON body the
/v1/run endpoint accepts) or from --zeros flags that build zero-filled
tensors, e.g. --zeros input_ids=int64:1,128 for smoke testing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := activeCfg
			if cfg.ModelPath == "" {
				return errors.New("a model path is required (--model or config file)")
			}
			if requestFile == "" && len(zeroInputs) == 0 {
				return errors.New("either --request or --zeros is required")
			}

			var req types.RunRequest
			if requestFile != "" {
				raw, err := os.ReadFile(requestFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &req); err != nil {
					return fmt.Errorf("parse request file: %w", err)
				}
			}
			if req.Inputs == nil {
				req.Inputs = make(map[string]types.TensorPayload, len(zeroInputs))
			}
			for _, spec := range zeroInputs {
				name, payload, err := zeroPayload(spec)
				if err != nil {
					return err
				}
				req.Inputs[name] = payload
			}
			if len(outputs) > 0 {
				req.Outputs = outputs
			}

			if err := initRuntime(cfg); err != nil {
				return err
			}

			sess, engine, err := openSession(cfg)
			if err != nil {
				return err
			}

			svc := modelsvc.New(engine, sess, logger)
			defer svc.Close()

			resp, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&requestFile, "request", "", "JSON request file with the input feed")
	cmd.Flags().StringSliceVar(&outputs, "output", nil, "Output names to compute (default: all)")
	cmd.Flags().StringArrayVar(&zeroInputs, "zeros", nil, "Zero-filled input as name=type:shape, e.g. input_ids=int64:1,128")

	return cmd
}

// zeroPayload parses a name=type:shape spec into a zero-filled tensor
// payload.
func zeroPayload(spec string) (string, types.TensorPayload, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" {
		return "", types.TensorPayload{}, fmt.Errorf("invalid input spec %q, want name=type:shape", spec)
	}
	typeName, shapeRaw, ok := strings.Cut(rest, ":")
	if !ok {
		return "", types.TensorPayload{}, fmt.Errorf("invalid input spec %q, want name=type:shape", spec)
	}
	if _, err := ort.TensorElementDataTypeFromString(typeName); err != nil {
		return "", types.TensorPayload{}, err
	}
	shape, err := ort.ParseShape(shapeRaw)
	if err != nil {
		return "", types.TensorPayload{}, fmt.Errorf("invalid shape in %q: %w", spec, err)
	}
	count, err := ort.ShapeElementCount(shape)
	if err != nil {
		return "", types.TensorPayload{}, err
	}

	data, err := json.Marshal(make([]int64, count))
	if err != nil {
		return "", types.TensorPayload{}, err
	}
	return name, types.TensorPayload{
		Type:  typeName,
		Shape: shape,
		Data:  data,
	}, nil
}
