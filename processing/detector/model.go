package processing

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ModelKind int

const (
	ModelONNX ModelKind = iota + 1
	ModelRemote
)

// ResolveModel tells which backend serves a model reference: a ws:// or wss://
// URL is a detection server, a .onnx file runs locally. PyTorch checkpoints
// have to be exported first.
func ResolveModel(ref string) (ModelKind, error) {
	if strings.HasPrefix(ref, "ws://") || strings.HasPrefix(ref, "wss://") {
		return ModelRemote, nil
	}

	switch ext := strings.ToLower(filepath.Ext(ref)); ext {
	case ".onnx":
		return ModelONNX, nil
	case ".pt":
		return 0, fmt.Errorf("%s is a PyTorch checkpoint, export it first: yolo export model=%s format=onnx", ref, ref)
	case "":
		return 0, fmt.Errorf("model %q has no file extension", ref)
	default:
		return 0, fmt.Errorf("unsupported model format %q", ext)
	}
}
