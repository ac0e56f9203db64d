//go:build windows

package thread

import "golang.org/x/sys/windows"

const supported = true

func current() ID { return ID(windows.GetCurrentThreadId()) }
