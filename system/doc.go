// Package system contains the log sinks the sensor store can write to
package system
