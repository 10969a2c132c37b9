package data

import "golang.org/x/exp/slices"

// SensorType identifies the kind of reading a producer sends
type SensorType string

// Recognized sensor types
const (
	SensorAccelerometer SensorType = "accelerometer"
	SensorGravity       SensorType = "gravity"
	SensorGyroscope     SensorType = "gyroscope"
	SensorOrientation   SensorType = "orientation"
	SensorInclinometer  SensorType = "inclinometer"
)

// SensorTypes lists every sensor type the store accepts
var SensorTypes = []SensorType{
	SensorAccelerometer,
	SensorGravity,
	SensorGyroscope,
	SensorOrientation,
	SensorInclinometer,
}

// Valid returns true if the sensor type is one the store accepts
func (st SensorType) Valid() bool {
	return slices.Contains(SensorTypes, st)
}

// Action is a control request sent to the store
type Action string

// Supported control actions
const (
	ActionClearData      Action = "clearData"
	ActionDeleteDatabase Action = "deleteDatabase"
)

// Actions lists every control action accepted on the message channel
var Actions = []Action{
	ActionClearData,
	ActionDeleteDatabase,
}

// Valid returns true if the action is one the store accepts
func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}
