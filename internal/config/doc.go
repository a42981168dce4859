// Package config parses the two external inputs every PBSM node needs at
// bootstrap: the cluster's host list and this process's own node index.
//
// Both follow the same fail-fast-with-a-clear-message idiom: a single
// mandatory positional self_id argument, and a shared /etc/pbsm/hosts.conf
// (or PBSM_HOSTS_FILE override) listing one peer address per line.
package config
