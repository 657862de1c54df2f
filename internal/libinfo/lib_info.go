/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package libinfo

func UserAgent() string {
	return LibName + "/" + GetLibVersion()
}

func LogPrefix() string {
	return "[" + LibName + "/" + GetLibVersion() + "] "
}
