package orbitd

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbitx-dev/orbitx/internal/agent"
	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

// newPermissionChecker builds the Dispatcher gate from spec.md §6's
// allow/deny/ask glob lists. Deny wins over Allow; a name matching Ask
// falls through to the teacher's per-call PermissionEngine, which this
// daemon can only ever answer from a previously persisted rule — there is
// no synchronous UI to prompt, so an unanswered "ask" tool is denied
// rather than silently allowed. A name matching none of the three lists is
// allowed, matching the Dispatcher's pre-existing (nil-Checker) behavior.
func newPermissionChecker(perms config.Permissions, engine *agent.PermissionEngine) tools.PermissionCheck {
	return func(call tools.Call) (bool, string) {
		if globMatch(perms.Deny, call.Name) {
			return false, "tool is in the deny list"
		}
		if globMatch(perms.Allow, call.Name) {
			return true, ""
		}
		if globMatch(perms.Ask, call.Name) {
			params := call.Params
			if params == nil {
				params = map[string]any{}
			}
			allowed, err := engine.CheckPermission(call.Name, "execute", params)
			if err != nil {
				return false, err.Error()
			}
			if !allowed {
				return false, "requires approval; record one with `orbitctl permissions allow_once|always_allow <tool>`"
			}
			return true, ""
		}
		return true, ""
	}
}

// permissionDecision maps the control surface's wire strings onto the
// teacher's PermissionDecision enum; an unrecognized string denies, since
// that is the fail-safe direction for a tool permission.
func permissionDecision(s string) agent.PermissionDecision {
	switch s {
	case "allow_once":
		return agent.AllowOnce
	case "always_allow":
		return agent.AlwaysAllow
	case "always_deny":
		return agent.AlwaysDeny
	default:
		return agent.Deny
	}
}

func globMatch(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// newAuditRecorder persists every tool-call decision to the AuditLogs
// repository — the supplemented decision trail from original_source's
// agent_execution_log.rs, independent of the tool_calls row the executor
// itself writes for the result content.
func newAuditRecorder(s *store.Store) tools.AuditRecord {
	return func(call tools.Call, result tools.ToolResult) {
		decision := "allowed"
		if result.Status == tools.StatusError && strings.HasPrefix(result.Text(), "permission denied") {
			decision = "denied"
		}
		_ = s.AuditLogs().Save(store.AuditLog{
			ID:        uuid.NewString(),
			Kind:      "tool_call",
			Subject:   call.Name,
			Decision:  decision,
			Detail:    result.Text(),
			CreatedAt: time.Now().UTC(),
		})
	}
}
