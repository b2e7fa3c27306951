// Package aes software AES-128, see FIPS 197.
package aes

import (
	"github.com/lysShub/uartcrypt/crypto"
)

const (
	rounds       = 10
	ScheduleSize = (rounds + 1) * crypto.BlockSize
)

// Schedule expanded round keys, read-only after ExpandKey.
type Schedule [ScheduleSize]byte

func (s *Schedule) round(r int) []byte {
	return s[r*crypto.BlockSize : (r+1)*crypto.BlockSize]
}

// ExpandKey derive the 11 round keys of key.
func ExpandKey(key *crypto.Key) *Schedule {
	var s = &Schedule{}
	copy(s[:], key[:])

	var t [4]byte
	for i := 4; i < ScheduleSize/4; i++ {
		copy(t[:], s[(i-1)*4:i*4])
		if i%4 == 0 {
			// RotWord, SubWord, Rcon
			t[0], t[1], t[2], t[3] = sbox[t[1]], sbox[t[2]], sbox[t[3]], sbox[t[0]]
			t[0] ^= rcon[i/4]
		}
		for j := 0; j < 4; j++ {
			s[i*4+j] = s[(i-4)*4+j] ^ t[j]
		}
	}
	return s
}

// EncryptBlock encrypt src into dst, dst and src may alias.
func EncryptBlock(dst, src *crypto.Block, s *Schedule) {
	var state = *src

	addRoundKey(&state, s.round(0))
	for r := 1; r < rounds; r++ {
		subBytes(&state)
		shiftRows(&state)
		mixColumns(&state)
		addRoundKey(&state, s.round(r))
	}
	subBytes(&state)
	shiftRows(&state)
	addRoundKey(&state, s.round(rounds))

	*dst = state
}

// DecryptBlock decrypt src into dst, dst and src may alias.
func DecryptBlock(dst, src *crypto.Block, s *Schedule) {
	var state = *src

	addRoundKey(&state, s.round(rounds))
	for r := rounds - 1; r > 0; r-- {
		invShiftRows(&state)
		invSubBytes(&state)
		addRoundKey(&state, s.round(r))
		invMixColumns(&state)
	}
	invShiftRows(&state)
	invSubBytes(&state)
	addRoundKey(&state, s.round(0))

	*dst = state
}

func addRoundKey(state *crypto.Block, rk []byte) {
	for i := range state {
		state[i] ^= rk[i]
	}
}

func subBytes(state *crypto.Block) {
	for i, b := range state {
		state[i] = sbox[b]
	}
}

func invSubBytes(state *crypto.Block) {
	for i, b := range state {
		state[i] = invSbox[b]
	}
}

// shiftRows row r rotate left by r, state[c*4+r] is row r column c.
func shiftRows(state *crypto.Block) {
	var old = *state
	for c := 0; c < 4; c++ {
		for r := 1; r < 4; r++ {
			state[c*4+r] = old[((c+r)%4)*4+r]
		}
	}
}

func invShiftRows(state *crypto.Block) {
	var old = *state
	for c := 0; c < 4; c++ {
		for r := 1; r < 4; r++ {
			state[((c+r)%4)*4+r] = old[c*4+r]
		}
	}
}

// xtime multiply by x in GF(2^8) modulo x^8+x^4+x^3+x+1
func xtime(b byte) byte {
	if b&0x80 != 0 {
		return b<<1 ^ 0x1b
	}
	return b << 1
}

// mul GF(2^8) multiply by repeated doubling
func mul(a, b byte) (p byte) {
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		a = xtime(a)
		b >>= 1
	}
	return p
}

func mixColumns(state *crypto.Block) {
	for c := 0; c < 4; c++ {
		col := state[c*4 : c*4+4]
		a0, a1, a2, a3 := col[0], col[1], col[2], col[3]

		col[0] = xtime(a0) ^ (xtime(a1) ^ a1) ^ a2 ^ a3
		col[1] = a0 ^ xtime(a1) ^ (xtime(a2) ^ a2) ^ a3
		col[2] = a0 ^ a1 ^ xtime(a2) ^ (xtime(a3) ^ a3)
		col[3] = (xtime(a0) ^ a0) ^ a1 ^ a2 ^ xtime(a3)
	}
}

func invMixColumns(state *crypto.Block) {
	for c := 0; c < 4; c++ {
		col := state[c*4 : c*4+4]
		a0, a1, a2, a3 := col[0], col[1], col[2], col[3]

		col[0] = mul(a0, 0x0e) ^ mul(a1, 0x0b) ^ mul(a2, 0x0d) ^ mul(a3, 0x09)
		col[1] = mul(a0, 0x09) ^ mul(a1, 0x0e) ^ mul(a2, 0x0b) ^ mul(a3, 0x0d)
		col[2] = mul(a0, 0x0d) ^ mul(a1, 0x09) ^ mul(a2, 0x0e) ^ mul(a3, 0x0b)
		col[3] = mul(a0, 0x0b) ^ mul(a1, 0x0d) ^ mul(a2, 0x09) ^ mul(a3, 0x0e)
	}
}
