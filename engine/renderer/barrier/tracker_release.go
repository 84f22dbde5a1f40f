//go:build release

package barrier

const trackingEnabled = false
