//go:build !protogen

package match

// NewProfileProvider degrades to the local cache provider in builds without
// generated gRPC stubs.
func NewProfileProvider(_ string, fallback Provider) (Provider, error) {
	return fallback, nil
}
