package pipeline

import (
	"errors"
	"fmt"
)

// 默认切块参数，单位为字符（rune）。
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// ErrInvalidChunkConfig 表示切块参数不合法。
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// ValidateChunkConfig 校验切块大小与重叠。
func ValidateChunkConfig(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkConfig, size, overlap)
	}
	return nil
}

// SplitText 将长文本按指定大小和重叠进行切分。
// 第 i 个切块从第 i*(size-overlap) 个字符开始，最后一块可能较短；空文本不产生切块。
func SplitText(text string, size, overlap int) ([]string, error) {
	if err := ValidateChunkConfig(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []string
	step := size - overlap
	for i := 0; i < len(runes); i += step {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
