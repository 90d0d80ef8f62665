package roles

import (
	"encoding/binary"
	"fmt"
)

const (
	selectorSize = 4
	wordSize     = 32
)

// SelectorOf returns the selector addressed by data. Empty calldata maps to
// the zero selector; one to three bytes cannot name a function.
func SelectorOf(data []byte) (Selector, error) {
	var sel Selector
	if len(data) == 0 {
		return sel, nil
	}
	if len(data) < selectorSize {
		return sel, ErrFunctionSignatureTooShort
	}
	copy(sel[:], data[:selectorSize])
	return sel, nil
}

// PluckParameter extracts the comparable bytes of the parameter at index
// from ABI-encoded calldata (selector included):
//   - Static: the 32-byte head word.
//   - Dynamic: the payload the head offset points at, without its length.
//   - Dynamic32: the element words the head offset points at, without the
//     length word.
//
// Out-of-range heads, offsets and lengths yield ErrCalldataOutOfBounds.
// The returned slice aliases data.
func PluckParameter(data []byte, index int, t ParameterType) ([]byte, error) {
	if index < 0 || index >= MaxParameters {
		return nil, fmt.Errorf("parameter %d: %w", index, ErrCalldataOutOfBounds)
	}
	if len(data) < selectorSize {
		return nil, fmt.Errorf("parameter %d: %w", index, ErrCalldataOutOfBounds)
	}
	args := data[selectorSize:]
	head := uint64(index) * wordSize

	switch t {
	case Static:
		word, err := readWord(args, head)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", index, err)
		}
		return word, nil
	case Dynamic, Dynamic32:
		offset, err := readLength(args, head)
		if err != nil {
			return nil, fmt.Errorf("parameter %d offset: %w", index, err)
		}
		length, err := readLength(args, offset)
		if err != nil {
			return nil, fmt.Errorf("parameter %d length: %w", index, err)
		}
		if t == Dynamic32 {
			if length > uint64(len(args))/wordSize {
				return nil, fmt.Errorf("parameter %d: %w", index, ErrCalldataOutOfBounds)
			}
			length *= wordSize
		}
		start := offset + wordSize
		if length > uint64(len(args))-start {
			return nil, fmt.Errorf("parameter %d: %w", index, ErrCalldataOutOfBounds)
		}
		return args[start : start+length], nil
	default:
		return nil, fmt.Errorf("parameter %d: %w", index, ErrUnknownParameterType)
	}
}

// readWord returns the 32-byte word at pos.
func readWord(buf []byte, pos uint64) ([]byte, error) {
	if pos > uint64(len(buf)) || uint64(len(buf))-pos < wordSize {
		return nil, ErrCalldataOutOfBounds
	}
	return buf[pos : pos+wordSize], nil
}

// readLength reads the word at pos as an offset or length. Anything larger
// than len(buf) is out of bounds.
func readLength(buf []byte, pos uint64) (uint64, error) {
	word, err := readWord(buf, pos)
	if err != nil {
		return 0, err
	}
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, ErrCalldataOutOfBounds
		}
	}
	v := binary.BigEndian.Uint64(word[wordSize-8:])
	if v > uint64(len(buf)) {
		return 0, ErrCalldataOutOfBounds
	}
	return v, nil
}
