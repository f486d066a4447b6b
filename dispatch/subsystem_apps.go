package dispatch

import (
	"strings"

	"github.com/machinefabric/devlink-go/result"
	"github.com/machinefabric/devlink-go/storage"
)

// AppsSubsystem exposes the installed-application store: listing, reading a
// file back, removing an app, and requesting a UI app-list refresh.
type AppsSubsystem struct {
	Store *storage.Store
	// Refresh requests an application-list refresh on the UI side; the
	// composition root routes it through the work queue.
	Refresh func()
}

// Name implements Subsystem.
func (a *AppsSubsystem) Name() string { return "apps" }

// Exec implements Subsystem.
func (a *AppsSubsystem) Exec(cmd string, args []string) *result.Result {
	switch cmd {
	case "list":
		apps, err := a.Store.ListApps()
		if err != nil {
			return result.Errf(result.KindServer, "apps: %v", err)
		}
		return result.OK().
			WithData(map[string]any{"count": len(apps)}).
			WithStringData([]byte(strings.Join(apps, "\n")))
	case "read":
		if len(args) != 2 {
			return result.Err(result.KindInvalid, "apps read <app> <file>")
		}
		data, err := a.Store.ReadAppFile(args[0], args[1])
		if err != nil {
			return result.Errf(result.KindNotFound, "apps: %v", err)
		}
		return result.OK().
			WithData(map[string]any{"file": args[1]}).
			WithBinaryData(data)
	case "remove":
		if len(args) != 1 {
			return result.Err(result.KindInvalid, "apps remove <app>")
		}
		if err := a.Store.RemoveApp(args[0]); err != nil {
			return result.Errf(result.KindServer, "apps: %v", err)
		}
		if a.Refresh != nil {
			a.Refresh()
		}
		return result.OKStatus("removed")
	case "refresh":
		if a.Refresh != nil {
			a.Refresh()
		}
		return result.OK()
	default:
		return result.Errf(result.KindInvalid, "apps: unknown command %q", cmd)
	}
}
