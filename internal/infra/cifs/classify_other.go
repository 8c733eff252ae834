//go:build !linux && !darwin

package cifs

const supported = false

const exitStatusIsErrno = false

var forceUnmountArgs = []string{"-f"}

var errnoKinds = map[int]errnoClass{}
