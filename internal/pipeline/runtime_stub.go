//go:build !govips

package pipeline

// Startup and Shutdown only matter for the libvips build.
func Startup() error { return nil }

func Shutdown() {}

func newTranscoder() Transcoder {
	return webpTranscoder{}
}
