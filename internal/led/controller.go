// Package led drives a board status LED from AutoCirculate activity: off
// while every channel is idle, solid while channels run cleanly and blinking
// while a running channel is dropping frames.
package led

// Patterns understood by every Controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
	PatternOff   = "none"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches ledType on or off with an optional pattern. An empty
	// pattern leaves the trigger unchanged.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types supported by this controller.
	Available() []string

	// Patterns returns the patterns supported by this controller.
	Patterns() []string
}
