package openproject

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"unicode"
)

// DecodeExport streams a bulk work package export. The document is either a
// single object or an array of objects; visit is called for each object in
// order. Array elements that are not objects are skipped and counted.
func DecodeExport(r io.Reader, visit func(index int, item map[string]any)) (skipped int, err error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		return 0, fmt.Errorf("empty export document: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first != '[' {
		var item map[string]any
		if err := dec.Decode(&item); err != nil {
			return 0, fmt.Errorf("failed to decode export object: %w", err)
		}
		if item == nil {
			return 1, nil
		}
		visit(0, item)
		return 0, nil
	}

	if _, err := dec.Token(); err != nil {
		return 0, fmt.Errorf("failed to read export array: %w", err)
	}
	index := 0
	for dec.More() {
		var v any
		if err := dec.Decode(&v); err != nil {
			return skipped, fmt.Errorf("failed to decode export element %d: %w", index, err)
		}
		if item, ok := v.(map[string]any); ok {
			visit(index, item)
		} else {
			skipped++
		}
		index++
	}
	if _, err := dec.Token(); err != nil {
		return skipped, fmt.Errorf("unterminated export array: %w", err)
	}
	return skipped, nil
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) && b != 0xEF && b != 0xBB && b != 0xBF {
			return b, br.UnreadByte()
		}
	}
}
