package router

import (
	"encoding/binary"
	"fmt"
)

// EncodeWhoIsRouterToNetwork builds the body of a Who-Is-Router-To-Network
// network message (clause 6.4.1). network is 0 to ask about every network
// the replying router serves.
func EncodeWhoIsRouterToNetwork(network uint16) []byte {
	if network == 0 {
		return nil
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, network)
	return buf
}

// DecodeWhoIsRouterToNetwork parses a Who-Is-Router-To-Network body. A
// zero return value with ok==false means "any network".
func DecodeWhoIsRouterToNetwork(body []byte) (network uint16, specific bool, err error) {
	if len(body) == 0 {
		return 0, false, nil
	}
	if len(body) != 2 {
		return 0, false, fmt.Errorf("router: who-is-router-to-network body length %d", len(body))
	}
	return binary.BigEndian.Uint16(body), true, nil
}

// EncodeIAmRouterToNetwork builds the body of an I-Am-Router-To-Network
// message listing every network advertised.
func EncodeIAmRouterToNetwork(networks []uint16) []byte {
	buf := make([]byte, 0, 2*len(networks))
	for _, n := range networks {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], n)
		buf = append(buf, b[:]...)
	}
	return buf
}

// DecodeIAmRouterToNetwork parses an I-Am-Router-To-Network body into its
// list of advertised network numbers.
func DecodeIAmRouterToNetwork(body []byte) ([]uint16, error) {
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("router: i-am-router-to-network body length %d not a multiple of 2", len(body))
	}
	out := make([]uint16, 0, len(body)/2)
	for i := 0; i < len(body); i += 2 {
		out = append(out, binary.BigEndian.Uint16(body[i:i+2]))
	}
	return out, nil
}
