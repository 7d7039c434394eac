package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTagArg extracts a single tag from a command argument string.
func ParseTagArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "", fmt.Errorf("exactly one tag is required")
	}
	return strings.ToLower(fields[0]), nil
}

// ParseCallbackData splits "<action>:<generation>" callback data.
func ParseCallbackData(data string) (string, uint64, error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	switch action {
	case cmdMore, cmdRetry:
	default:
		return "", 0, fmt.Errorf("unknown callback action %q", action)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid generation %q", raw)
	}
	return action, gen, nil
}
