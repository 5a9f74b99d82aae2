//go:build darwin

package config

import "os/exec"

// keychainExec reads a generic password item, e.g. one created with
// `security add-generic-password -s waypoint -a service_token -w <token>`.
func keychainExec(service, account string) ([]byte, error) {
	return exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
}
