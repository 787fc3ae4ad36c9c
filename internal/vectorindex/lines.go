package vectorindex

import "strings"

// LineExtractor is the trivial built-in SymbolExtractor: it has no language
// awareness and treats each blank-line-delimited block as one Generic
// chunk. It's the fallback for any file extension TreeSitterExtractor
// (or a future language-specific extractor) doesn't recognize.
type LineExtractor struct{}

func (LineExtractor) Extract(path string, content []byte) ([]Symbol, error) {
	text := string(content)
	lines := strings.Split(text, "\n")

	var symbols []Symbol
	blockStartLine := -1
	byteOffset := 0
	blockStartByte := 0

	flush := func(endLine, endByte int) {
		if blockStartLine < 0 || endLine < blockStartLine {
			return
		}
		symbols = append(symbols, Symbol{
			Type:      ChunkGeneric,
			ByteStart: blockStartByte,
			ByteEnd:   endByte,
			LineStart: blockStartLine,
			LineEnd:   endLine,
		})
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lineLen := len(line) + 1 // account for the '\n' split removed
		if trimmed == "" {
			if blockStartLine >= 0 {
				flush(i-1, byteOffset)
				blockStartLine = -1
			}
		} else if blockStartLine < 0 {
			blockStartLine = i
			blockStartByte = byteOffset
		}
		byteOffset += lineLen
	}
	if blockStartLine >= 0 {
		// The last line had no '\n' removed, so clamp to the content length.
		if byteOffset > len(content) {
			byteOffset = len(content)
		}
		flush(len(lines)-1, byteOffset)
	}
	return symbols, nil
}
