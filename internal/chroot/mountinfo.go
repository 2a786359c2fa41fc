package chroot

import "strings"

// mountinfoContains reports whether any line of /proc/self/mountinfo's
// mount-point field (the 5th whitespace-separated field) equals target.
func mountinfoContains(mountinfo, target string) bool {
	for _, line := range strings.Split(mountinfo, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if fields[4] == target {
			return true
		}
	}
	return false
}
