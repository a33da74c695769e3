package extract

import (
	"math/big"
	"sort"
	"strconv"

	"linkchain/internal/decode"
)

const (
	cipherLayers   = 3
	printableFirst = 32
	printableCount = 95 // ASCII 32..126

	keygenXOR   = 247
	keygenShift = 5
)

// lcg is the linear congruential generator the player script seeds per layer.
type lcg uint64

func (g *lcg) next(n int) int {
	*g = (*g*1103515245 + 12345) & 0x7fffffff
	return int(uint64(*g) % uint64(n))
}

// layerHash is the 32-bit polynomial hash (base 31) used to seed each layer.
func layerHash(key string) uint64 {
	var h uint64
	for i := 0; i < len(key); i++ {
		h = (h*31 + uint64(key[i])) & 0xffffffff
	}
	return h
}

// decryptSrc2 undoes the three cipher layers applied to an encrypted
// getSources payload. The plaintext carries a four digit length prefix.
func decryptSrc2(src, clientKey, megacloudKey string) string {
	key := keygen2(megacloudKey, clientKey)
	if key == "" {
		return ""
	}

	out := decode.Atob(src)
	for layer := cipherLayers; layer > 0; layer-- {
		out = reverseLayer(out, key+strconv.Itoa(layer))
	}

	if len(out) < 4 {
		return ""
	}
	n, err := strconv.Atoi(out[:4])
	if err != nil || n < 0 || 4+n > len(out) {
		return ""
	}
	return out[4 : 4+n]
}

func reverseLayer(s, layerKey string) string {
	// Undo the seeded shift of printable characters.
	seed := lcg(layerHash(layerKey))
	shifted := []rune(s)
	for i, r := range shifted {
		if r < printableFirst || r >= printableFirst+printableCount {
			continue
		}
		idx := int(r) - printableFirst
		shifted[i] = rune(printableFirst + (idx-seed.next(printableCount)+printableCount)%printableCount)
	}

	transposed := columnarCipher2(string(shifted), layerKey)

	// Undo the substitution table.
	sub := seedShuffle2(layerKey)
	var reverse [printableCount]byte
	for i, c := range sub {
		reverse[c-printableFirst] = byte(printableFirst + i)
	}
	out := []rune(transposed)
	for i, r := range out {
		if r >= printableFirst && r < printableFirst+printableCount {
			out[i] = rune(reverse[r-printableFirst])
		}
	}
	return string(out)
}

// keygen2 derives the layer key from the published key and the page's client key.
func keygen2(megacloudKey, clientKey string) string {
	tempKey := megacloudKey + clientKey
	if tempKey == "" {
		return ""
	}

	// h = c + 31h + (h << 7) - h, i.e. c + 158h, in unbounded precision.
	h := new(big.Int)
	factor := big.NewInt(158)
	for i := 0; i < len(tempKey); i++ {
		h.Mul(h, factor)
		h.Add(h, big.NewInt(int64(tempKey[i])))
	}
	lHash := new(big.Int).Mod(h, new(big.Int).SetUint64(0x7fffffffffffffff)).Int64()

	xored := make([]byte, len(tempKey))
	for i := 0; i < len(tempKey); i++ {
		xored[i] = tempKey[i] ^ keygenXOR
	}

	pivot := int(lHash%int64(len(xored))) + keygenShift
	pivot %= len(xored)
	rotated := append(append([]byte{}, xored[pivot:]...), xored[:pivot]...)

	leaf := decode.ReverseString(clientKey)
	interleaved := make([]byte, 0, len(rotated)+len(leaf))
	for i := 0; i < max(len(rotated), len(leaf)); i++ {
		if i < len(rotated) {
			interleaved = append(interleaved, rotated[i])
		}
		if i < len(leaf) {
			interleaved = append(interleaved, leaf[i])
		}
	}

	limit := min(96+int(lHash%33), len(interleaved))
	out := make([]byte, limit)
	for i, c := range interleaved[:limit] {
		out[i] = byte(int(c)%printableCount + printableFirst)
	}
	return string(out)
}

// seedShuffle2 returns the printable characters in the order a seeded
// Fisher-Yates shuffle leaves them.
func seedShuffle2(key string) []byte {
	chars := make([]byte, printableCount)
	for i := range chars {
		chars[i] = byte(printableFirst + i)
	}
	g := lcg(layerHash(key))
	for i := len(chars) - 1; i > 0; i-- {
		j := g.next(i + 1)
		chars[i], chars[j] = chars[j], chars[i]
	}
	return chars
}

// columnarCipher2 reverses a columnar transposition: src is written column by
// column in key order and read back row by row, padding with spaces.
func columnarCipher2(src, key string) string {
	cols := len(key)
	if cols == 0 {
		return src
	}
	rows := (len(src) + cols - 1) / cols

	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}

	order := make([]int, cols)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return key[order[a]] < key[order[b]] })

	n := 0
	for _, col := range order {
		for row := 0; row < rows && n < len(src); row++ {
			grid[row*cols+col] = src[n]
			n++
		}
	}
	return string(grid)
}
