package common

// HTTP header names used by the device-facing API.
const (
	AccessKeyHeaderName  = "Authorization"
	ResourceIDHeaderName = "ResourceId"
	DeviceIDHeaderName   = "Device"
	ScreenWidthHeader    = "ScreenWidth"
	ScreenHeightHeader   = "ScreenHeight"
	AlbumHandleHeader    = "Album"
)
