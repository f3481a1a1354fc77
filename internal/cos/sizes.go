package cos

const (
	KiB = 1024
	MiB = 1024 * KiB
)

// RoundUpThousand rounds n up to the SO_SNDBUF growth target used on
// EMSGSIZE (§4.D.1): the next thousand bytes above n, plus one extra
// thousand-byte step of headroom so the new buffer comfortably clears
// the failing message rather than landing exactly on its boundary.
// §8's worked example pins this down: a 40040-byte framed message
// (40000-byte payload plus the 4-byte inner and 36-byte outer
// headers) must grow
// SO_SNDBUF to exactly 42000, not 41000.
func RoundUpThousand(n int) int {
	return (n/1000 + 2) * 1000
}
