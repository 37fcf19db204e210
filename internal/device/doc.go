// Package device defines the Bluetooth Low Energy transport capability the
// heart-rate session controller depends on.
//
// The package holds no radio code. It declares:
//   - the Transport contract (availability, device request, channel open,
//     characteristic resolution, notification subscribe/unsubscribe, close and
//     link-drop notification)
//   - the device filter used to pick a compatible peripheral
//   - structured connection errors shared by transport implementations
//   - UUID normalisation and the well-known Heart Rate service identifiers
//
// Platform radio stacks implement Transport in sub-packages (see go-ble).
package device
