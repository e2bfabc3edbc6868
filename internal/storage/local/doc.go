// Package local stores downloaded documents and their JSON descriptors
// on the local filesystem, mirroring the portal's reference paths.
package local
