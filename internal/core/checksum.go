package core

// Checksum recomputation for tampered packets. The tamper module mutates
// payload bytes in place, which invalidates the transport checksum (and,
// for IPv4, leaves the header checksum intact but is recomputed anyway
// for symmetry with substrates that validate it).

const (
	protoTCP = 6
	protoUDP = 17
)

// RecalculateChecksums rewrites the IPv4 header checksum and the TCP/UDP
// checksum of a raw datagram. Returns false when the packet is not a
// recognizable IPv4/IPv6 TCP or UDP datagram; the packet is left as-is
// in that case (a corrupted checksum is itself a valid corruption).
func RecalculateChecksums(data []byte) bool {
	switch IPVersion(data) {
	case 4:
		return recalcIPv4(data)
	case 6:
		return recalcIPv6(data)
	default:
		return false
	}
}

func recalcIPv4(data []byte) bool {
	if len(data) < 20 {
		return false
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < 20 || len(data) < ihl {
		return false
	}
	data[10] = 0
	data[11] = 0
	computeIPv4Checksum(data)

	proto := data[9]
	transport := data[ihl:]
	return recalcTransport(transport, proto, data[12:16], data[16:20])
}

func recalcIPv6(data []byte) bool {
	if len(data) < 40 {
		return false
	}
	// Extension headers are rare on emulated flows; only the common
	// no-extension case is handled.
	proto := data[6]
	transport := data[40:]
	return recalcTransport(transport, proto, data[8:24], data[24:40])
}

func recalcTransport(transport []byte, proto byte, src, dst []byte) bool {
	var csumOffset int
	switch proto {
	case protoTCP:
		if len(transport) < 20 {
			return false
		}
		csumOffset = 16
	case protoUDP:
		if len(transport) < 8 {
			return false
		}
		csumOffset = 6
	default:
		return false
	}

	transport[csumOffset] = 0
	transport[csumOffset+1] = 0

	var sum uint32
	sum = addBytes(sum, src)
	sum = addBytes(sum, dst)
	sum += uint32(proto)
	sum += uint32(len(transport))
	sum = addBytes(sum, transport)
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	csum := ^uint16(sum)
	if csum == 0 && proto == protoUDP {
		csum = 0xffff // zero means "no checksum" for UDP
	}
	transport[csumOffset] = byte(csum >> 8)
	transport[csumOffset+1] = byte(csum)
	return true
}

func addBytes(sum uint32, b []byte) uint32 {
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}
