package models

// ScreenGeometry is the target render size a device reports at pairing time.
// Derived images are sized to it by the image pipeline.
type ScreenGeometry struct {
	Width  int
	Height int
}
