package mutator

import (
	"encoding/binary"
	"math/rand"
)

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

// havocOp 作用于小端字节串的原地变异，返回是否改变了内容
type havocOp func(r *rand.Rand, b []byte) bool

var havocOps = []havocOp{
	flipBit,
	flipByte,
	randomByte,
	interestingByte,
	interestingWord,
	interestingDword,
	arithByte,
	arithDword,
	swapBytes,
}

func flipBit(r *rand.Rand, b []byte) bool {
	bit := r.Intn(len(b) * 8)
	b[bit/8] ^= 1 << (bit % 8)
	return true
}

func flipByte(r *rand.Rand, b []byte) bool {
	b[r.Intn(len(b))] ^= 0xff
	return true
}

func randomByte(r *rand.Rand, b []byte) bool {
	i := r.Intn(len(b))
	old := b[i]
	b[i] = byte(r.Intn(256))
	return b[i] != old
}

func interestingByte(r *rand.Rand, b []byte) bool {
	i := r.Intn(len(b))
	old := b[i]
	b[i] = byte(interesting8[r.Intn(len(interesting8))])
	return b[i] != old
}

func interestingWord(r *rand.Rand, b []byte) bool {
	if len(b) < 2 {
		return false
	}
	i := r.Intn(len(b) - 1)
	v := uint16(interesting16[r.Intn(len(interesting16))])
	old := binary.LittleEndian.Uint16(b[i:])
	binary.LittleEndian.PutUint16(b[i:], v)
	return old != v
}

// interestingDword 对应AFL的interesting dword覆盖
func interestingDword(r *rand.Rand, b []byte) bool {
	if len(b) < 4 {
		return interestingWord(r, b)
	}
	i := r.Intn(len(b) - 3)
	v := uint32(interesting32[r.Intn(len(interesting32))])
	old := binary.LittleEndian.Uint32(b[i:])
	binary.LittleEndian.PutUint32(b[i:], v)
	return old != v
}

func arithByte(r *rand.Rand, b []byte) bool {
	i := r.Intn(len(b))
	delta := byte(1 + r.Intn(35))
	if r.Intn(2) == 0 {
		b[i] += delta
	} else {
		b[i] -= delta
	}
	return true
}

func arithDword(r *rand.Rand, b []byte) bool {
	if len(b) < 4 {
		return arithByte(r, b)
	}
	i := r.Intn(len(b) - 3)
	v := binary.LittleEndian.Uint32(b[i:])
	delta := uint32(1 + r.Intn(35))
	if r.Intn(2) == 0 {
		v += delta
	} else {
		v -= delta
	}
	binary.LittleEndian.PutUint32(b[i:], v)
	return true
}

func swapBytes(r *rand.Rand, b []byte) bool {
	if len(b) < 2 {
		return false
	}
	i, j := r.Intn(len(b)), r.Intn(len(b))
	if b[i] == b[j] {
		return false
	}
	b[i], b[j] = b[j], b[i]
	return true
}

// havoc 叠加 1..2^stackPow 个随机操作
func havoc(r *rand.Rand, b []byte, stackPow int) bool {
	if len(b) == 0 {
		return false
	}
	if stackPow < 1 {
		stackPow = 1
	}
	n := 1 << r.Intn(stackPow+1)
	changed := false
	for i := 0; i < n; i++ {
		if havocOps[r.Intn(len(havocOps))](r, b) {
			changed = true
		}
	}
	return changed
}
