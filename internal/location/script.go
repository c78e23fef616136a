package location

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

type scriptLine struct {
	tracking.Position
	Error string `json:"error,omitempty"`
}

// LoadScript reads newline-delimited JSON positions from path. A line may
// carry {"error":"permission_denied"|"unavailable"|"timeout"} instead of a
// position.
func LoadScript(path string, clk clock.Clock) (*ScriptedProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open location script: %w", err)
	}
	defer f.Close()

	steps, err := ParseScript(f)
	if err != nil {
		return nil, err
	}
	return NewScriptedProvider(steps, clk), nil
}

// ParseScript parses the LoadScript format from r.
func ParseScript(r io.Reader) ([]Step, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var steps []Step
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var sl scriptLine
		if err := json.Unmarshal([]byte(line), &sl); err != nil {
			return nil, fmt.Errorf("location script line %d: %w", lineNo, err)
		}
		if sl.Error != "" {
			stepErr, err := scriptError(sl.Error)
			if err != nil {
				return nil, fmt.Errorf("location script line %d: %w", lineNo, err)
			}
			steps = append(steps, Step{Err: stepErr})
			continue
		}
		steps = append(steps, Step{Position: sl.Position})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read location script: %w", err)
	}
	return steps, nil
}

func scriptError(code string) (error, error) {
	switch strings.ToLower(code) {
	case "permission_denied":
		return ErrPermissionDenied, nil
	case "unavailable", "position_unavailable":
		return ErrPositionUnavailable, nil
	case "timeout":
		return ErrTimeout, nil
	default:
		return nil, fmt.Errorf("unknown error code %q", code)
	}
}
