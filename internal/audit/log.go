// Package audit emits structured audit entries for security-relevant
// events: logins, session changes and structural mutations of the role
// and permission trees.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"userhub.org/internal/auth"
	"userhub.org/internal/obs"
)

// Event names recorded by the HTTP layer.
const (
	EventLogin          = "auth.login"
	EventLoginFailed    = "auth.login_failed"
	EventLogout         = "auth.logout"
	EventTokenRefreshed = "auth.token_refreshed"
	EventTokenReplay    = "auth.token_replay"
	EventPasswordChange = "auth.password_changed"
	EventUserCreated    = "users.created"
	EventUserDeactived  = "users.deactivated"
	EventRoleAssigned   = "roles.assigned"
	EventRoleUnassigned = "roles.unassigned"
	EventGroupCreated   = "groups.created"
	EventGroupRenamed   = "groups.renamed"
	EventGroupMoved     = "groups.moved"
	EventGroupDeleted   = "groups.deleted"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["actor_id"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
