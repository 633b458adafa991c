package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/onnxgo/ortserve/ort"
	"github.com/onnxgo/ortserve/session"
)

// inspectReport is the JSON shape printed by the inspect command.
type inspectReport struct {
	RuntimeVersion     string                 `json:"runtime_version"`
	AvailableProviders []string               `json:"available_providers"`
	ActiveProviders    []string               `json:"active_providers"`
	Inputs             []session.NodeInfo     `json:"inputs"`
	Outputs            []session.NodeInfo     `json:"outputs"`
	Metadata           *session.ModelMetadata `json:"metadata"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print model inputs, outputs and metadata as JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := activeCfg
			if cfg.ModelPath == "" {
				return errors.New("a model path is required (--model or config file)")
			}

			if err := initRuntime(cfg); err != nil {
				return err
			}

			sess, engine, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			available, err := engine.AvailableProviders()
			if err != nil {
				return err
			}

			report := inspectReport{
				RuntimeVersion:     ort.GetVersionString(),
				AvailableProviders: available,
				ActiveProviders:    sess.Providers(),
				Inputs:             sess.Inputs(),
				Outputs:            sess.Outputs(),
				Metadata:           sess.ModelMetadata(),
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
