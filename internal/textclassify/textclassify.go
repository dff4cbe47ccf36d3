// Package textclassify implements the TextClassifier component: a fast,
// heuristic binary/textual classification over a byte sample: a null-byte
// check, a control-character ratio, and a lone-surrogate test.
package textclassify

import "unicode/utf8"

// sampleSize is how much of the file's head is inspected. Reading only the
// head keeps classification O(1) in file size.
const sampleSize = 8 * 1024

// controlRatioThreshold is the fraction of "problematic" control bytes in
// the sample above which content is classified binary.
const controlRatioThreshold = 0.10

// Classify reports whether content is binary. Empty input is textual.
func Classify(content []byte) (binary bool) {
	if len(content) == 0 {
		return false
	}

	sample := content
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	for _, b := range sample {
		if b == 0 {
			return true
		}
	}

	if controlRatio(sample) > controlRatioThreshold {
		return true
	}

	if hasLoneSurrogate(sample) {
		return true
	}

	return false
}

// IsTextual is the complement of Classify, for call sites that read more
// naturally in the positive.
func IsTextual(content []byte) bool {
	return !Classify(content)
}

// controlRatio computes the fraction of bytes in sample that are
// "problematic" control characters: 0x00-0x08 and 0x0E-0x1F. Tab, LF, VT,
// FF, and CR (0x09-0x0D) are ordinary text bytes and do not count.
func controlRatio(sample []byte) float64 {
	if len(sample) == 0 {
		return 0
	}

	problematic := 0
	for _, b := range sample {
		if isProblematicControl(b) {
			problematic++
		}
	}

	return float64(problematic) / float64(len(sample))
}

func isProblematicControl(b byte) bool {
	return b <= 0x08 || (b >= 0x0e && b <= 0x1f)
}

// hasLoneSurrogate reports whether the sample, decoded as UTF-8, contains a
// lone (unpaired) UTF-16 surrogate code point encoded via WTF-8-style
// 3-byte sequences, a strong binary signal since valid UTF-8 never encodes
// surrogates at all.
func hasLoneSurrogate(sample []byte) bool {
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRune(sample[i:])
		if r == utf8.RuneError && size <= 1 {
			// DecodeRune rejects surrogate encodings, so match the
			// 3-byte form ED A0..BF 80..BF (U+D800..U+DFFF) directly.
			if i+2 < len(sample) && sample[i] == 0xED &&
				sample[i+1] >= 0xA0 && sample[i+1] <= 0xBF &&
				sample[i+2] >= 0x80 && sample[i+2] <= 0xBF {
				return true
			}
			i++
			continue
		}
		i += size
	}
	return false
}
