//go:build !release

package barrier

const trackingEnabled = true
