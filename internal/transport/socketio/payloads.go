package socketio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// MountPayload is sent as pushMountSamba.
type MountPayload struct {
	Success        bool   `json:"success"`
	Mountpoint     string `json:"mountpoint,omitempty"`
	Server         string `json:"server,omitempty"`
	AlreadyMounted bool   `json:"alreadyMounted"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
}

// UnmountPayload is sent as pushUnmountSamba.
type UnmountPayload struct {
	Success    bool   `json:"success"`
	Mountpoint string `json:"mountpoint,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"errorKind,omitempty"`
}

func mountMessage(res mounts.MountResult) string {
	if res.AlreadyMounted {
		return fmt.Sprintf("%s is already mounted at %s", res.Server, res.Mountpoint)
	}
	return fmt.Sprintf("Mounted %s at %s", res.Server, res.Mountpoint)
}

func mountFailure(req mounts.MountRequest, err error) MountPayload {
	me := mounts.AsError(err)
	mp := me.Mountpoint
	if mp == "" {
		mp = req.Mountpoint
	}
	return MountPayload{
		Mountpoint: mp,
		Server:     req.Server,
		Error:      me.Error(),
		ErrorKind:  string(me.Kind),
	}
}

func unmountFailure(mp string, err error) UnmountPayload {
	me := mounts.AsError(err)
	return UnmountPayload{
		Mountpoint: mp,
		Error:      me.Error(),
		ErrorKind:  string(me.Kind),
	}
}

var errMissingPayload = mounts.NewError(mounts.KindInvalidRequest, "missing request payload")

// parseMountRequest reads {server, username, password, mountpoint}.
func parseMountRequest(args []any) (mounts.MountRequest, error) {
	var req mounts.MountRequest
	if len(args) == 0 {
		return req, errMissingPayload
	}
	m, ok := args[0].(map[string]interface{})
	if !ok {
		return req, errMissingPayload
	}
	req.Server, _ = m["server"].(string)
	req.Username, _ = m["username"].(string)
	req.Mountpoint, _ = m["mountpoint"].(string)
	if pw, ok := m["password"].(string); ok && pw != "" {
		req.Password = []byte(pw)
	}
	req.Server = strings.TrimSpace(req.Server)
	req.Mountpoint = strings.TrimSpace(req.Mountpoint)
	return req, nil
}

// parseUnmountArgs accepts either a bare mountpoint string or
// {mountpoint, force}.
func parseUnmountArgs(args []any) (string, bool, error) {
	if len(args) == 0 {
		return "", false, errMissingPayload
	}
	switch v := args[0].(type) {
	case string:
		return strings.TrimSpace(v), false, nil
	case map[string]interface{}:
		mp, _ := v["mountpoint"].(string)
		force, _ := v["force"].(bool)
		return strings.TrimSpace(mp), force, nil
	default:
		return "", false, errors.Join(errMissingPayload, fmt.Errorf("unexpected payload %T", v))
	}
}
