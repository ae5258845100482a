package frontend

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/mirahmed753/cretonne/errors"
)

// Validate checks that data is a valid module with the reference types
// proposal enabled. Translation assumes valid input, so callers that read
// untrusted files validate first.
func Validate(ctx context.Context, data []byte) error {
	cfg := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		Logger().Debug("module failed validation", zap.Error(err))
		return errors.New(errors.PhaseTranslate, errors.KindInvalidInput).
			Detail("module failed validation").
			Cause(err).
			Build()
	}
	defer compiled.Close(ctx)

	Logger().Debug("module validated",
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return nil
}
