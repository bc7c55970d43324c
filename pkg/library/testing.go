package library

import "github.com/rimescape/sampler/pkg/audiofile"

// SetPreloadForTest installs a preload buffer directly, bypassing the
// loader's disk read. Exported for other packages' tests (notably voice)
// that need a record with known preload contents but no file on disk.
func SetPreloadForTest(r *ArticulationRecord, buf []float32) {
	r.setPreload(buf, r.PreloadEndFrames)
}

// RegisterOpenerForTest installs an audiofile.Opener for an extension
// (including the leading dot, lowercase), letting tests exercise Load
// and ReconcilePreload without real audio files on disk.
func RegisterOpenerForTest(ext string, opener audiofile.Opener) {
	extensionOpeners[ext] = opener
}
