package recorder

import (
	"bufio"
	"encoding/json"
	"os"
)

// transcriptMaxLineBytes bounds a single transcript line; assistant turns
// with large tool outputs can run long.
const transcriptMaxLineBytes = 4 * 1024 * 1024

// transcriptLine is the subset of Claude Code's transcript JSONL schema the
// Stop handler cares about: assistant turns carrying one or more content
// blocks, some of which are "thinking" (reasoning) blocks.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Thinking string `json:"thinking"`
			Text     string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// reasoningBlocks extracts the thinking-block text of every assistant turn
// appearing after byteOffset in the transcript file at path, returning the
// extracted text in order and the new end-of-file byte offset to persist as
// the session's cursor. A missing or unreadable file is tolerated — Stop's
// failure policy treats transcript scanning as non-fatal.
func reasoningBlocks(path string, byteOffset int64) (blocks []string, newOffset int64, err error) {
	if path == "" {
		return nil, byteOffset, nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: path supplied by the harness's own hook payload, not untrusted user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, byteOffset, nil
		}
		return nil, byteOffset, err
	}
	defer func() { _ = f.Close() }()

	if byteOffset > 0 {
		if _, err := f.Seek(byteOffset, 0); err != nil {
			return nil, byteOffset, err
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), transcriptMaxLineBytes)

	offset := byteOffset
	for scanner.Scan() {
		line := scanner.Bytes()
		offset += int64(len(line)) + 1 // +1 for the newline bufio.Scanner splits on

		var tl transcriptLine
		if err := json.Unmarshal(line, &tl); err != nil {
			continue // tolerate malformed or partially-written lines
		}
		if tl.Type != "assistant" && tl.Message.Role != "assistant" {
			continue
		}
		for _, block := range tl.Message.Content {
			if block.Type == "thinking" && block.Thinking != "" {
				blocks = append(blocks, block.Thinking)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return blocks, offset, err
	}
	return blocks, offset, nil
}
