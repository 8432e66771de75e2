// Command imagehash computes and compares perceptual image hashes from the
// command line.
//
//	imagehash hash photo.jpg --algorithm block --size 16
//	imagehash compare original.jpg resized.jpg
//	imagehash distance ff00ff00ff00ff00 ff00ff00ff00ff0f
package main
