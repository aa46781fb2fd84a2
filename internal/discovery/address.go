package discovery

import (
	"regexp"
	"strings"
)

// maxAddressLen is the longest node address the controller accepts.
const maxAddressLen = 14

var illegalNodeChars = regexp.MustCompile("[<>`~!@#$%^&*(){}\\[\\]?/\\\\;:\"']+")

// NodeAddress turns s into a controller node address: illegal characters
// removed, the last 14 characters kept, lower case.
func NodeAddress(s string) string {
	addr := illegalNodeChars.ReplaceAllString(s, "")
	if len(addr) > maxAddressLen {
		addr = addr[len(addr)-maxAddressLen:]
	}
	return strings.ToLower(addr)
}

// NodeName removes the characters the controller rejects in node names.
func NodeName(s string) string {
	return illegalNodeChars.ReplaceAllString(s, "")
}

// ThermostatAddress derives the node address from a device id.
func ThermostatAddress(id string) string {
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return NodeAddress(id)
}
