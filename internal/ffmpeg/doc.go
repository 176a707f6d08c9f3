// Package ffmpeg drives the FFmpeg command line tools as child processes.
//
// ffprobe describes a container and its streams. ffmpeg demuxes, decodes and
// converts video to a packed RGB-family pixel format which is streamed back
// over stdout as headerless raw frames ([width*height*bpp bytes] per frame).
// Encoded packets can also be piped in over stdin, so an in-memory list of
// H.264 access units decodes the same way a file does.
//
// Processes are always reaped: a FrameSource kills its process on Close, and
// a failed process surfaces as an *ExitError carrying the tail of its stderr.
package ffmpeg
