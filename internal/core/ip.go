package core

// IPVersion returns the IP version nibble of a raw datagram, or 0 if the
// buffer is empty.
func IPVersion(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	return int(data[0] >> 4)
}

// SwapAddresses exchanges the source and destination addresses of a raw
// IPv4 or IPv6 datagram in place. Returns false if the buffer is too
// short or not an IP packet.
//
// Swapping the two addresses does not change the one's-complement sum
// they contribute to, so neither the IPv4 header checksum nor the
// TCP/UDP pseudo-header checksum needs to be recomputed. The IPv4 header
// checksum is still zeroed so a substrate that recomputes checksums on
// send will fill it in.
func SwapAddresses(data []byte) bool {
	switch IPVersion(data) {
	case 4:
		if len(data) < 20 {
			return false
		}
		for i := 0; i < 4; i++ {
			data[12+i], data[16+i] = data[16+i], data[12+i]
		}
		data[10] = 0
		data[11] = 0
		computeIPv4Checksum(data)
		return true
	case 6:
		if len(data) < 40 {
			return false
		}
		for i := 0; i < 16; i++ {
			data[8+i], data[24+i] = data[24+i], data[8+i]
		}
		return true
	default:
		return false
	}
}

func computeIPv4Checksum(data []byte) {
	ihl := int(data[0]&0x0f) * 4
	if ihl < 20 || len(data) < ihl {
		return
	}
	var sum uint32
	for i := 0; i < ihl; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	csum := ^uint16(sum)
	data[10] = byte(csum >> 8)
	data[11] = byte(csum)
}
