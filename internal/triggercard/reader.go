package triggercard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReadResult 触发卡文件回读结果
type ReadResult struct {
	// Cards 成功解析的完整记录（按文件顺序）
	Cards []Card
	// Truncated 末行是否被截断（崩溃终止的预期形态，不视为损坏）
	Truncated bool
	// InvalidLines 中间出现的非法行数（截断末行不计入）
	InvalidLines int
}

// ReadFile 回读触发卡 JSONL 文件
// 每完整行独立解析；末行不完整时仍返回之前的全部记录并置 Truncated。
// 参数 path: 文件路径
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开触发卡文件失败: %w", err)
	}
	defer f.Close()

	res := &ReadResult{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines [][]byte
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取触发卡文件失败: %w", err)
	}

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		card, ok := parseLine(line)
		if !ok {
			if i == len(lines)-1 {
				// 末行解析失败视为截断，不算损坏
				res.Truncated = true
			} else {
				res.InvalidLines++
			}
			continue
		}
		res.Cards = append(res.Cards, card)
	}

	return res, nil
}

// parseLine 解析单行并校验 schema 与必需字段
func parseLine(line []byte) (Card, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Card{}, false
	}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return Card{}, false
		}
	}
	if raw["schema_version"] != SchemaVersion {
		return Card{}, false
	}

	var card Card
	if err := json.Unmarshal(line, &card); err != nil {
		return Card{}, false
	}
	return card, true
}
