package clipdef

import "os"

const sampleDefinition = `# kirinuki clip definition
# KEY=VALUE per line. Lines starting with # are comments.

# Source video URL (required)
VIDEO_URL=https://www.youtube.com/watch?v=xxxxxxxxxxxxx

# Cut start time (required, hh:mm:ss or mm:ss)
START_TIME=00:05:30

# Cut end time (optional, hh:mm:ss or mm:ss)
END_TIME=00:10:45

# Clip title (optional; shown as a title bar on the first clip of a chain)
# TITLE=My clip title

# Download and cut the source automatically (optional, default: true).
# When false, WEBM_PATH must point at an already-cut file.
AUTO_DOWNLOAD=true

# Pre-cut source file (optional, used when AUTO_DOWNLOAD=false)
# WEBM_PATH=data/input/clip.webm

# Shift this clip's chat display in seconds (optional; positive values show
# chat earlier, compensating for a chat feed that lags the video)
# CHAT_DELAY=16

# Edge crop percentages top,bottom,left,right (optional)
# CROP=5,0,10,10

# Next definition in the chain (optional; a file path or definition name)
# NEXT=part2.txt

# Output and temp directories (optional)
OUTPUT_DIR=data/output
TEMP_DIR=data/temp
`

// WriteSample writes a commented sample definition file.
func WriteSample(path string) error {
	return os.WriteFile(path, []byte(sampleDefinition), 0644)
}
