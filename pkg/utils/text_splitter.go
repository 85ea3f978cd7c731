package utils

// Chunk is one slice of a document together with its character offsets
// in the original text. Offsets are rune-based, half-open [Start, End).
type Chunk struct {
	Text  string
	Start int
	End   int
}

// SplitText splits a long string into chunks of approximately
// 'chunkSize' characters with an 'overlap' to preserve context at
// boundaries. This is a simple character-based splitter.
func SplitText(text string, chunkSize int, overlap int) []Chunk {
	runes := []rune(text)
	totalLen := len(runes)

	if totalLen <= chunkSize {
		return []Chunk{{Text: text, Start: 0, End: totalLen}}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	var chunks []Chunk
	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		chunks = append(chunks, Chunk{
			Text:  string(runes[i:end]),
			Start: i,
			End:   end,
		})

		if end == totalLen {
			break
		}
	}

	return chunks
}
