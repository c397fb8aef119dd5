package registry

import (
	"context"

	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// ImagePipeline prepares raw image bytes for a device screen: decode,
// resize, EXIF orientation. The real implementation lives outside the core;
// the broker only depends on this contract.
type ImagePipeline interface {
	Process(ctx context.Context, data []byte, geometry models.ScreenGeometry) ([]byte, error)
}

// PassthroughPipeline returns the bytes unchanged. Used in tests and when
// the deployment does server-side processing elsewhere.
type PassthroughPipeline struct{}

func (PassthroughPipeline) Process(_ context.Context, data []byte, _ models.ScreenGeometry) ([]byte, error) {
	return data, nil
}
