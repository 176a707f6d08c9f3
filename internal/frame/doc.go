// Package frame holds decoded video frames in packed RGB-family layouts.
//
// Frames arrive already converted by FFmpeg. This package only reorders
// channels between the packed formats it knows (rgb24, bgr24, rgba) and
// writes frames out as PPM, PNG or JPEG images.
package frame
