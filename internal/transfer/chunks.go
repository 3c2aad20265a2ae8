package transfer

import "math"

// ChunkCount returns ceil(size/chunkSize).
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// ChunkRange returns the [start, end) byte range of chunk index within a
// payload of the given size. The final chunk may be shorter.
func ChunkRange(index int, size, chunkSize int64) (int64, int64) {
	start := int64(index) * chunkSize
	end := start + chunkSize
	if end > size {
		end = size
	}
	return start, end
}

// CumulativeBytes is the byte offset of chunk index's end: min((i+1)*C, S).
// Using the offset rather than summing chunk lengths tolerates the uneven
// final chunk.
func CumulativeBytes(index int, size, chunkSize int64) int64 {
	cum := int64(index+1) * chunkSize
	if cum > size {
		cum = size
	}
	return cum
}

// Percentage converts uploaded bytes into a rounded percentage clamped
// to [0, 100].
func Percentage(bytesUploaded, totalBytes int64) int {
	if totalBytes <= 0 {
		return 0
	}
	pct := int(math.Round(float64(bytesUploaded) / float64(totalBytes) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}
