package hub

import "errors"

var (
	ErrDeviceNotFound   = errors.New("hub: device not found")
	ErrSceneNotFound    = errors.New("hub: scene not found")
	ErrSceneUnsupported = errors.New("hub: scene execution is not supported by the gateway")
	ErrNotConnected     = errors.New("hub: not connected")
	ErrInvalidValue     = errors.New("hub: value must be between 0 and 100")
)
