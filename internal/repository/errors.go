// Package repository implements persistence for users, licenses and seat
// assignments on MySQL, and the active token marker on Redis.  Sentinel
// errors defined here let handlers distinguish failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrUserNotFound is returned when no user matches the lookup.  Handlers
// should treat it like a wrong password so that logins cannot be probed.
var ErrUserNotFound = errors.New("user not found")
