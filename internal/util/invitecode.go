package util

import "crypto/rand"

// inviteAlphabet omits characters that read ambiguously when shared by
// hand: I, L, O, 0, 1.
const inviteAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const InviteCodeLength = 8

// NewInviteCode returns an 8-character uppercase join code.
func NewInviteCode() string {
	buf := make([]byte, InviteCodeLength)
	_, _ = rand.Read(buf)
	code := make([]byte, InviteCodeLength)
	for i, b := range buf {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(code)
}
