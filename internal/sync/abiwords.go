package sync

import (
	"math/big"
	"strings"

	hexutil "github.com/r3e-network/oracle-observatory/infrastructure/hex"
)

// wordAt reads the 32-byte ABI word beginning at byteOffset within hex
// data (a 0x-stripped hex string).
func wordAt(data string, byteOffset int) *big.Int {
	start := byteOffset * 2
	end := start + 64
	if start < 0 || end > len(data) {
		return big.NewInt(0)
	}
	v := new(big.Int)
	v.SetString(data[start:end], 16)
	return v
}

// addressAt reads the address right-aligned in the word at byteOffset.
func addressAt(data string, byteOffset int) string {
	start := byteOffset*2 + 24 // skip 12 zero bytes of padding
	end := start + 40
	if start < 0 || end > len(data) {
		return ""
	}
	return "0x" + strings.ToLower(data[start:end])
}

// boolAt reads a bool word at byteOffset (nonzero is true).
func boolAt(data string, byteOffset int) bool {
	return wordAt(data, byteOffset).Sign() != 0
}

// bytesAt reads a dynamic `bytes` value whose ABI-encoded offset word sits
// at headerOffset: it follows the offset to a length word, then reads that
// many bytes of content.
func bytesAt(data string, headerOffset int) []byte {
	offset := int(wordAt(data, headerOffset).Int64())
	length := int(wordAt(data, offset).Int64())
	contentStart := (offset + 32) * 2
	contentEnd := contentStart + length*2
	if contentStart < 0 || contentEnd > len(data) || length == 0 {
		return nil
	}
	out, ok := hexutil.TryDecode(data[contentStart:contentEnd])
	if !ok {
		return nil
	}
	return out
}

func stripHexPrefix(s string) string {
	return hexutil.TrimPrefix(s)
}
