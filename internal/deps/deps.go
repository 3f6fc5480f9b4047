// Package deps checks the external tools a worker shells out to.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const listTimeout = 10 * time.Second

// Tool is an external binary and the ffmpeg encoders it must have been built
// with. Encoders only apply to ffmpeg-style binaries that answer -encoders.
type Tool struct {
	Name     string
	Command  string
	Purpose  string
	Optional bool
	Encoders []string
}

// Status is the outcome of one tool or encoder check.
type Status struct {
	Name      string
	Command   string
	Purpose   string
	Optional  bool
	Available bool
	Detail    string
}

// Check resolves every tool on PATH. For each resolved tool that names
// encoders, the encoder table is listed once and one Status per encoder
// follows the tool's own Status. Encoder checks are skipped for tools that
// were not found.
func Check(ctx context.Context, tools []Tool) []Status {
	results := make([]Status, 0, len(tools))
	for _, tool := range tools {
		status := lookup(tool)
		results = append(results, status)
		if !status.Available {
			continue
		}
		encoders := nonEmpty(tool.Encoders)
		if len(encoders) == 0 {
			continue
		}
		table, err := listEncoders(ctx, status.Command)
		for _, encoder := range encoders {
			results = append(results, encoderStatus(tool, status.Command, encoder, table, err))
		}
	}
	return results
}

func lookup(tool Tool) Status {
	cmd := strings.TrimSpace(tool.Command)
	status := Status{
		Name:     tool.Name,
		Command:  cmd,
		Purpose:  strings.TrimSpace(tool.Purpose),
		Optional: tool.Optional,
	}
	switch {
	case cmd == "":
		status.Detail = "command not configured"
	default:
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Available = true
		}
	}
	return status
}

func encoderStatus(tool Tool, command, encoder string, table []byte, listErr error) Status {
	status := Status{
		Name:     "Encoder " + encoder,
		Command:  command,
		Purpose:  fmt.Sprintf("%s encoder used for proxies", tool.Name),
		Optional: tool.Optional,
	}
	switch {
	case listErr != nil:
		status.Detail = fmt.Sprintf("list encoders: %v", listErr)
	case !listsEncoder(table, encoder):
		status.Detail = fmt.Sprintf("%s has no %q encoder", tool.Name, encoder)
	default:
		status.Available = true
	}
	return status
}

func listEncoders(ctx context.Context, command string) ([]byte, error) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	return exec.CommandContext(listCtx, command, "-hide_banner", "-encoders").Output()
}

// listsEncoder matches the name column of ffmpeg's encoder table, e.g.
// " V..... prores_ks            Apple ProRes (iCodec Pro) (codec prores)".
func listsEncoder(output []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && len(fields[0]) == 6 && fields[1] == encoder {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
