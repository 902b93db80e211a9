package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps device tree model substrings to LED type -> sysfs name.
var boardLEDs = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{"user": "usr_led", "system": "sys_led"}},
	{"Orange Pi", map[string]string{"blue": "blue_led", "green": "green_led"}},
	{"Raspberry Pi", map[string]string{"act": "ACT"}},
}

// New returns a controller for the detected board, or a no-op controller
// when the board has no known LEDs.
func New(logger *slog.Logger) Controller {
	return newForModel(detectBoard(), sysfsLEDPath, logger)
}

func newForModel(model, root string, logger *slog.Logger) Controller {
	if logger == nil {
		logger = slog.Default()
	}
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
