// Package reflector turns thermostat snapshots into controller node
// attributes and pushes only what changed.
//
// Each node (thermostat or sensor) has a last-reflected set of attributes
// keyed by driver name. An attribute is emitted when its value or unit of
// measure differs from what was last reflected, so applying the same
// snapshot twice produces one update. Only poll results feed the cache.
package reflector
