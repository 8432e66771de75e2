/*
Package imagehash computes perceptual fingerprints of images.

Four algorithms are available, each implementing Implementation:

	AverageHash     pixels brighter than the mean luma
	DifferenceHash  sign of the horizontal luma gradient
	PerceptualHash  low-frequency DCT coefficients against their mean or median
	BlockHash       per-block intensity sums against per-band medians

Every algorithm produces a bithash.Hash. Similar images give hashes with a
small Hamming distance; a distance below 10 for 64-bit hashes is a common
"same picture" threshold.

An Engine pairs an Implementation with the decoding side (files, readers,
byte slices, image.Image values) and is safe for concurrent use.
*/
package imagehash
