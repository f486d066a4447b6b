package dispatch

import (
	"strings"

	"github.com/machinefabric/devlink-go/result"
)

// SysSubsystem answers liveness and identity commands.
type SysSubsystem struct {
	Version string
	Uptime  func() int64 // seconds; nil reports 0
}

// Name implements Subsystem.
func (s *SysSubsystem) Name() string { return "sys" }

// Exec implements Subsystem.
func (s *SysSubsystem) Exec(cmd string, args []string) *result.Result {
	switch cmd {
	case "ping":
		return result.OK()
	case "version":
		return result.OK().WithData(map[string]any{"version": s.Version})
	case "uptime":
		var secs int64
		if s.Uptime != nil {
			secs = s.Uptime()
		}
		return result.OK().WithData(map[string]any{"uptime": secs})
	case "echo":
		return result.OK().WithStringData([]byte(strings.Join(args, " ")))
	default:
		return result.Errf(result.KindInvalid, "sys: unknown command %q", cmd)
	}
}
