package ripper

// maxSyncSearch is how much of a new track is held back looking for an MP3
// frame header before it is written as is.
const maxSyncSearch = 8192

// findMP3FrameSync returns the offset of the first MP3 frame sync word: 0xFF
// followed by a byte whose top three bits are set (11 sync bits), with the
// MPEG version bits not set to the reserved value. Returns -1 if not found.
func findMP3FrameSync(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] != 0xFF || data[i+1]&0xE0 != 0xE0 {
			continue
		}
		// 01 is a reserved MPEG version.
		if (data[i+1]>>3)&0x03 == 0x01 {
			continue
		}
		return i
	}
	return -1
}
